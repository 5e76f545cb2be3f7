// Package transport owns the raw live-channel socket: dialing the endpoint
// for a given user and the framed read/write surface the supervisor drives.
// Everything above this package deals in frames, never in sockets.
package transport

import (
	"context"
	"time"
)

// Conn is one open live channel. ReadFrame blocks until a frame or a
// terminal error; frames are delivered in arrival order. Implementations
// must allow WriteFrame and Close to be called while ReadFrame blocks.
type Conn interface {
	// ReadFrame returns the next inbound frame payload.
	ReadFrame() ([]byte, error)
	// WriteFrame JSON-encodes v and sends it as one text frame.
	WriteFrame(v any) error
	// CloseGraceful performs a closing handshake with the given reason,
	// then releases the socket.
	CloseGraceful(reason string) error
	// Close releases the socket without a handshake.
	Close() error
}

// Dialer opens live channels. The supervisor holds exactly one Dialer and
// never opens a second Conn before discarding the first.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Conn, error)
}

// Timeouts applied by the websocket dialer when the caller does not
// override them.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)
