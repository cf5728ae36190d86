package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Swooye/FiveNursings-sub000/internal/capture"
	"github.com/Swooye/FiveNursings-sub000/internal/healthlog"
	"github.com/Swooye/FiveNursings-sub000/internal/live"
	"github.com/Swooye/FiveNursings-sub000/internal/playback"
	"github.com/Swooye/FiveNursings-sub000/internal/tools"
	"github.com/Swooye/FiveNursings-sub000/internal/transcript"
)

// Controller orchestrates one live voice session: it owns the state and
// mode fields, wires capture, playback, transcript accumulation and
// tool-call interception together, and produces the log artifact at close.
//
// All asynchronous event sources (capture callback, backend messages,
// playback clock) converge here; dispatch has one entry point per inbound
// message kind. A Controller drives a single session and is not reusable
// after Close.
type Controller struct {
	id     string
	stream Stream
	hooks  Hooks

	rec    *capture.Recorder
	sched  *playback.Scheduler
	acc    *transcript.Accumulator
	intent *tools.Interceptor

	mu    sync.Mutex
	state State
	mode  Mode

	doneCh chan struct{}
}

// New constructs a Controller over the given upstream stream and playback
// sink. The playback clock is injectable for tests; pass
// playback.NewWallClock() in production.
func New(stream Stream, clock playback.Clock, sink playback.Sink, hooks Hooks) *Controller {
	c := &Controller{
		id:     time.Now().Format("0102150405.000"),
		stream: stream,
		hooks:  hooks,
		sched:  playback.NewScheduler(clock, sink),
		acc:    transcript.New(),
		state:  Idle,
		mode:   ModeChat,
		doneCh: make(chan struct{}),
	}
	c.rec = capture.NewRecorder(c.sendChunk)
	c.intent = tools.NewInterceptor(func(reason string) { c.upgradeMode(reason) })
	return c
}

// ID returns the session identifier used in log lines.
func (c *Controller) ID() string { return c.id }

// Start acquires the microphone source and opens the upstream connection.
// Either failure is terminal: the session transitions straight to Closed
// and is never retried.
func (c *Controller) Start(src capture.Source) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return fmt.Errorf("session: start from %s", c.state)
	}
	c.state = Connecting
	c.mu.Unlock()
	c.notifyState(Connecting)

	if err := c.rec.Start(src); err != nil {
		log.Printf("[%s] mic acquisition failed: %v", c.id, err)
		c.teardown(false)
		return err
	}
	if err := c.stream.Connect(); err != nil {
		log.Printf("[%s] connect failed: %v", c.id, err)
		c.rec.Stop()
		c.teardown(false)
		return fmt.Errorf("session: connect: %w", err)
	}

	c.mu.Lock()
	c.state = Active
	c.mu.Unlock()
	c.notifyState(Active)
	log.Printf("[%s] session active", c.id)

	go c.readLoop()
	return nil
}

// FeedPCM16 pushes already-quantized microphone samples into capture. Used
// by transports that decode compressed audio server-side.
func (c *Controller) FeedPCM16(samples []int16) { c.rec.PushPCM16(samples) }

// FeedFloat32 pushes platform-native float samples into capture.
func (c *Controller) FeedFloat32(samples []float32) { c.rec.PushFloat32(samples) }

// sendChunk forwards one wire-ready capture chunk upstream.
func (c *Controller) sendChunk(chunk capture.Chunk) {
	if c.State() == Closed {
		return
	}
	err := c.stream.SendMedia(live.Blob{MimeType: chunk.MimeType, Data: chunk.Data})
	if err != nil {
		log.Printf("[%s] send audio: %v", c.id, err)
	}
}

func (c *Controller) readLoop() {
	for msg := range c.stream.Messages() {
		c.dispatch(msg)
	}
	// channel closed: either we closed gracefully or the connection died
	if c.State() != Closed {
		log.Printf("[%s] connection lost", c.id)
		c.teardown(false)
	}
}

// dispatch routes one inbound frame. Per-message failures are absorbed
// here; only connection loss ends the session.
func (c *Controller) dispatch(msg live.ServerMessage) {
	// frames still buffered after close must not touch the transcript the
	// artifact was built from
	if c.State() == Closed {
		return
	}
	switch {
	case msg.SetupComplete != nil:
		log.Printf("[%s] setup complete", c.id)
	case msg.ToolCall != nil:
		c.handleToolCall(*msg.ToolCall)
	case msg.ServerContent != nil:
		c.handleServerContent(*msg.ServerContent)
	default:
		log.Printf("[%s] ignoring unknown server frame", c.id)
	}
}

func (c *Controller) handleToolCall(tc live.ToolCall) {
	resp, matched := c.intent.Intercept(tc)
	if !matched {
		return
	}
	if err := c.stream.SendToolResponse(resp); err != nil {
		log.Printf("[%s] tool ack failed: %v", c.id, err)
	}
}

func (c *Controller) handleServerContent(sc live.ServerContent) {
	if sc.Interrupted {
		c.sched.Interrupt()
		c.toActive("barge-in")
		return
	}

	if tr := sc.InputTranscription; tr != nil {
		if tr.Finished {
			c.finishTurn(tr.Text)
		} else {
			c.acc.Interim(tr.Text)
			if c.hooks.OnCaption != nil {
				c.hooks.OnCaption(tr.Text)
			}
		}
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil {
				continue
			}
			// response audio has begun for this turn
			c.toActive("response audio")
			_, _ = c.sched.Schedule(part.InlineData.Data, live.OutputSampleRate)
		}
	}

	if sc.TurnComplete {
		c.toActive("turn complete")
	}
}

// finishTurn commits the utterance at a turn boundary and enters Processing
// while the model formulates its reply. Empty utterances leave the state
// alone.
func (c *Controller) finishTurn(finalText string) {
	utterance := c.acc.Finalize(finalText)
	if c.hooks.OnCaption != nil {
		c.hooks.OnCaption("")
	}
	if utterance == "" {
		return
	}
	log.Printf("[%s] heard(final): %s", c.id, utterance)
	if c.hooks.OnUtterance != nil {
		c.hooks.OnUtterance(utterance)
	}

	c.mu.Lock()
	changed := c.state == Active
	if changed {
		c.state = Processing
	}
	c.mu.Unlock()
	if changed {
		c.notifyState(Processing)
	}
}

// toActive drops back from Processing to Active.
func (c *Controller) toActive(why string) {
	c.mu.Lock()
	changed := c.state == Processing
	if changed {
		c.state = Active
	}
	c.mu.Unlock()
	if changed {
		log.Printf("[%s] processing done (%s)", c.id, why)
		c.notifyState(Active)
	}
}

// upgradeMode flips Chat -> Logging. The interceptor guarantees this fires
// at most once; the mode is never downgraded.
func (c *Controller) upgradeMode(reason string) {
	c.mu.Lock()
	if c.mode != ModeLogging {
		c.mode = ModeLogging
	}
	c.mu.Unlock()
	log.Printf("[%s] mode upgraded to logging (%s)", c.id, reason)
}

// Stop is the explicit user close. It tears the session down and, in
// logging mode with a non-trivial transcript, returns the log artifact.
// Calling Stop on a closed session is a no-op returning nil.
func (c *Controller) Stop() *healthlog.Artifact {
	return c.teardown(true)
}

// teardown is the single close path. graceful distinguishes the
// user-initiated stop (which may produce an artifact) from connection
// failures (which never do).
func (c *Controller) teardown(graceful bool) *healthlog.Artifact {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	mode := c.mode
	close(c.doneCh)
	c.mu.Unlock()

	c.rec.Stop()
	_ = c.stream.Close()
	c.sched.Interrupt()
	c.notifyState(Closed)

	var artifact *healthlog.Artifact
	if graceful && mode == ModeLogging {
		artifact = healthlog.FromTranscript(c.acc.Full(), time.Now())
		if artifact != nil {
			log.Printf("[%s] log artifact %s: %s", c.id, artifact.ID, artifact.Summary)
		}
	}
	log.Printf("[%s] session closed (graceful=%v)", c.id, graceful)
	return artifact
}

// Done is closed when the session reaches Closed.
func (c *Controller) Done() <-chan struct{} { return c.doneCh }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current session mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Transcript returns the full session transcript so far.
func (c *Controller) Transcript() string { return c.acc.Full() }

// Interrupt stops playback immediately, keeping the session alive. Used by
// transports with their own local barge-in detection.
func (c *Controller) Interrupt() {
	c.sched.Interrupt()
	c.toActive("local barge-in")
}

func (c *Controller) notifyState(s State) {
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}
