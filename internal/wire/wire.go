// Package wire defines the JSON frames exchanged over the live channel.
//
// Inbound frames carry a "type" discriminator; outbound frames carry an
// "action". Unknown types are tolerated so the server can ship new frame
// kinds without breaking deployed clients.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound frame types.
const (
	TypeNotification = "notification"
	TypePong         = "pong"
)

// Outbound actions.
const (
	ActionPing = "ping"
)

// Frame is the envelope every inbound message shares.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Notification is the payload of a TypeNotification frame.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Category  string `json:"category,omitempty"`
	ActorID   string `json:"actorId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // epoch millis
}

// DedupKey identifies a notification for duplicate suppression. Servers are
// expected to send an id; when one is missing the timestamp stands in so a
// replayed frame still collapses to one delivery.
func (n Notification) DedupKey() string {
	if n.ID != "" {
		return n.ID
	}
	if n.Timestamp != 0 {
		return "ts:" + strconv.FormatInt(n.Timestamp, 10)
	}
	return ""
}

// Ping is the outbound heartbeat probe. No reply is required; the probe
// exists to generate traffic that surfaces dead connections.
type Ping struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// NewPing stamps a heartbeat with the current epoch millis.
func NewPing(now time.Time) Ping {
	return Ping{Action: ActionPing, Timestamp: now.UnixMilli()}
}

// Kind is the dispatch class of an inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotification
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Classified is the result of parsing one inbound frame.
type Classified struct {
	Kind         Kind
	Type         string
	Notification *Notification
}

// Classify parses a raw inbound frame. A non-nil error means the frame was
// malformed and should be dropped; the channel itself stays healthy. Frames
// with an unrecognized type classify as KindUnknown with no error.
func Classify(raw []byte) (Classified, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Classified{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	switch f.Type {
	case TypeNotification:
		var n Notification
		if err := json.Unmarshal(f.Data, &n); err != nil {
			return Classified{}, fmt.Errorf("wire: decode notification data: %w", err)
		}
		return Classified{Kind: KindNotification, Type: f.Type, Notification: &n}, nil
	case TypePong:
		return Classified{Kind: KindPong, Type: f.Type}, nil
	default:
		return Classified{Kind: KindUnknown, Type: f.Type}, nil
	}
}
