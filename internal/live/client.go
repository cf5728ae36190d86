package live

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const bidiEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Client is a WebSocket client for the bidirectional generate-content
// stream. Connect dials and sends the setup frame; after that, outbound
// frames are queued via Send and inbound frames are delivered on Messages.
// The Messages channel closes when the connection ends for any reason.
type Client struct {
	apiKey string
	setup  Setup

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	outbound chan ClientMessage
	messages chan ServerMessage
	stopCh   chan struct{}
}

// NewClient creates a client for the given API key and session setup.
func NewClient(apiKey string, setup Setup) *Client {
	return &Client{
		apiKey:   apiKey,
		setup:    setup,
		outbound: make(chan ClientMessage, 256),
		messages: make(chan ServerMessage, 64),
		stopCh:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and sends the setup frame.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("live: api key is empty")
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	wsURL := bidiEndpoint + "?" + q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			log.Printf("live: connect failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("live: connect: %w", err)
	}

	if err := conn.WriteJSON(ClientMessage{Setup: &c.setup}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("live: send setup: %w", err)
	}

	c.conn = conn
	c.connected = true

	go c.readLoop()
	go c.writeLoop()

	log.Printf("live: connected, model=%s", c.setup.Model)
	return nil
}

// Send queues a frame for delivery. It never blocks; when the outbound
// buffer is full the frame is dropped with a log line, matching the
// lossy-tolerant audio path.
func (c *Client) Send(msg ClientMessage) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("live: not connected")
	}
	select {
	case c.outbound <- msg:
		return nil
	default:
		log.Println("live: outbound buffer full, dropping frame")
		return nil
	}
}

// SendMedia queues one captured audio chunk.
func (c *Client) SendMedia(blob Blob) error {
	return c.Send(ClientMessage{RealtimeInput: &RealtimeInput{MediaChunks: []Blob{blob}}})
}

// SendToolResponse queues a function-call acknowledgment.
func (c *Client) SendToolResponse(tr ToolResponse) error {
	return c.Send(ClientMessage{ToolResponse: &tr})
}

// Messages returns the inbound frame channel.
func (c *Client) Messages() <-chan ServerMessage { return c.messages }

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	close(c.stopCh)
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connected = false
	c.conn = nil
	log.Println("live: connection closed")
	return nil
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
			default:
				log.Printf("live: read error: %v", err)
			}
			return
		}
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("live: malformed server frame: %v", err)
			continue
		}
		select {
		case c.messages <- msg:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case msg := <-c.outbound:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("live: write error: %v", err)
				return
			}
		}
	}
}
