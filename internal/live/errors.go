package live

import "errors"

var (
	// ErrNotConnected is returned by Send when no channel is open. Sends
	// are never queued for later.
	ErrNotConnected = errors.New("live: channel not connected")
	// ErrClosed is returned by operations on a Manager that has been
	// closed.
	ErrClosed = errors.New("live: manager closed")
	// ErrSendThrottled is returned by Send when the outbound rate limit
	// rejects the frame.
	ErrSendThrottled = errors.New("live: send rate limit exceeded")
	// ErrRetriesExhausted labels the terminal error state after the
	// automatic reconnect ceiling is hit.
	ErrRetriesExhausted = errors.New("live: reconnect attempts exhausted")
)
