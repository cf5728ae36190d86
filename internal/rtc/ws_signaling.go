package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// signalMessage is the minimal signaling frame exchanged with the browser.
// Types: "auth", "offer", "answer", "candidate", "ice-complete", "bye",
// "error".
type signalMessage struct {
	Type string `json:"type"`
	// auth
	Password string `json:"password,omitempty"`
	// offer/answer
	SDP string `json:"sdp,omitempty"`
	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for the patient web app; restrict in production
		return true
	},
}

// ServeWebSocket upgrades to WebSocket and performs offer/answer + trickle
// ICE signaling, attaching a live voice session to the resulting peer
// connection. It expects: auth(optional) -> offer -> candidates...
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("rtc: ws upgrade error: %v", err)
		return
	}
	conn := &lockedConn{ws: raw}
	defer func() { _ = raw.Close() }()

	if pwd := h.cfg.AuthPassword; pwd != "" {
		if !AuthOK(r, pwd) {
			// fall back to waiting for an auth message as first frame
			mt, data, rerr := raw.ReadMessage()
			if rerr != nil || mt != websocket.TextMessage {
				_ = writeWSError(conn, fmt.Errorf("auth required"))
				return
			}
			var m signalMessage
			if jerr := json.Unmarshal(data, &m); jerr != nil || strings.ToLower(m.Type) != "auth" || m.Password != pwd {
				_ = writeWSError(conn, fmt.Errorf("unauthorized"))
				return
			}
		}
	}

	// Read until an offer arrives
	var offerSDP string
	for {
		_, data, rerr := raw.ReadMessage()
		if rerr != nil {
			log.Printf("rtc: ws read error before offer: %v", rerr)
			return
		}
		var m signalMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		if strings.ToLower(m.Type) == "offer" && m.SDP != "" {
			offerSDP = m.SDP
			break
		}
		if strings.ToLower(m.Type) == "bye" {
			return
		}
	}

	pc, outTrack, cleanup, err := h.createPeer()
	if err != nil {
		_ = writeWSError(conn, err)
		return
	}
	defer cleanup()

	// Trickle local candidates to client
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			_ = conn.WriteJSON(signalMessage{Type: "ice-complete"})
			return
		}
		init := c.ToJSON()
		_ = conn.WriteJSON(signalMessage{
			Type:          "candidate",
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	// Accept remote trickle candidates from the client
	go func() {
		for {
			_, data, rerr := raw.ReadMessage()
			if rerr != nil {
				return
			}
			var m signalMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "candidate":
				if m.Candidate == "" {
					continue
				}
				_ = pc.AddICECandidate(webrtc.ICECandidateInit{
					Candidate:     m.Candidate,
					SDPMid:        m.SDPMid,
					SDPMLineIndex: m.SDPMLineIndex,
				})
			case "bye":
				_ = pc.Close()
				return
			}
		}
	}()

	h.attachMediaHandlers(pc, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		_ = writeWSError(conn, err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = writeWSError(conn, err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = writeWSError(conn, err)
		return
	}
	local := pc.LocalDescription()
	if local == nil {
		_ = writeWSError(conn, errors.New("no local description"))
		return
	}
	if err := conn.WriteJSON(signalMessage{Type: "answer", SDP: local.SDP}); err != nil {
		log.Printf("rtc: ws write answer error: %v", err)
		return
	}

	// Keep the goroutine alive until the peer connection ends
	for {
		time.Sleep(2 * time.Second)
		state := pc.ConnectionState()
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
			return
		}
	}
}

// AuthOK accepts the shared password via query, bearer header or
// X-Auth-Token. An empty expected password rejects nothing here; route
// guards decide whether auth is required at all.
func AuthOK(r *http.Request, password string) bool {
	if r == nil || password == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == password {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == password {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == password {
		return true
	}
	return false
}

// lockedConn serializes writes; gorilla connections allow one writer at a
// time and candidates arrive on pion goroutines.
type lockedConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *lockedConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func writeWSError(conn *lockedConn, err error) error {
	return conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
}
