package live

import "encoding/json"

// Status is the externally visible phase of the live channel. It is always
// recomputed from real transitions, never left stale: callers can render it
// directly.
type Status int32

const (
	// StatusDisconnected means no channel exists and none is being
	// opened. The initial state, and the result of a clean shutdown.
	StatusDisconnected Status = iota
	// StatusConnecting covers the whole pursuit of a channel: an open in
	// flight, or a backoff wait before the next automatic attempt.
	StatusConnecting
	// StatusConnected means frames can flow right now.
	StatusConnected
	// StatusError means the retry ceiling was hit. The supervisor stays
	// here until something external asks for a connection again.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "invalid"
	}
}

// MarshalJSON renders the status as its lowercase name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
