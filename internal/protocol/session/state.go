package session

import "time"

// State is the session lifecycle position. It only moves forward.
type State int32

const (
	StateCreated State = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Close reasons, also used as the metrics label.
const (
	ReasonEOF          = "eof"
	ReasonStopped      = "stopped"
	ReasonReadError    = "read_error"
	ReasonWriteError   = "write_error"
	ReasonInvalidFrame = "invalid_frame"
	ReasonHandlerError = "handler_error"
	ReasonHandshake    = "handshake"
)

// Snapshot is a point-in-time view of one session for the admin surface.
type Snapshot struct {
	ID          uint64    `json:"id"`
	Remote      string    `json:"remote"`
	Transport   string    `json:"transport"`
	State       State     `json:"state"`
	FramesIn    uint64    `json:"frames_in"`
	FramesOut   uint64    `json:"frames_out"`
	BytesIn     uint64    `json:"bytes_in"`
	BytesOut    uint64    `json:"bytes_out"`
	QueuedBytes int64     `json:"queued_bytes"`
	ReadsPaused bool      `json:"reads_paused"`
	StartedAt   time.Time `json:"started_at"`
}
