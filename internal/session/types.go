package session

import "github.com/Swooye/FiveNursings-sub000/internal/live"

// State is the session lifecycle phase. Transitions only move forward
// except Processing, which bounces back to Active each turn.
type State int

const (
	Idle State = iota
	Connecting
	Active
	Processing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Processing:
		return "processing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Mode is the session's purpose. It can only move Chat -> Logging, via the
// tool-call interceptor, and never back.
type Mode int

const (
	ModeChat Mode = iota
	ModeLogging
)

func (m Mode) String() string {
	if m == ModeLogging {
		return "logging"
	}
	return "chat"
}

// Stream is the minimal interface to the upstream bidirectional connection.
// The Messages channel closing signals the connection ended; the controller
// never blocks waiting for a specific message kind.
type Stream interface {
	Connect() error
	SendMedia(blob live.Blob) error
	SendToolResponse(tr live.ToolResponse) error
	Messages() <-chan live.ServerMessage
	Close() error
}

// Hooks observe UI-visible session changes. All fields are optional.
type Hooks struct {
	// OnState fires on every lifecycle transition.
	OnState func(s State)
	// OnCaption fires with each live-caption restatement.
	OnCaption func(text string)
	// OnUtterance fires when a user utterance is committed at a turn boundary.
	OnUtterance func(text string)
}
