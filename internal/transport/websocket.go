package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer dials the notification endpoint over websocket. The
// connecting user is carried as the userId query parameter, matching what
// the feed backend expects.
type WebSocketDialer struct {
	base             *url.URL
	header           http.Header
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

// WSOption customizes a WebSocketDialer.
type WSOption func(*WebSocketDialer)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) WSOption {
	return func(w *WebSocketDialer) { w.handshakeTimeout = d }
}

// WithWriteTimeout bounds every frame write on conns from this dialer.
func WithWriteTimeout(d time.Duration) WSOption {
	return func(w *WebSocketDialer) { w.writeTimeout = d }
}

// WithHeader adds a header to the handshake request.
func WithHeader(key, value string) WSOption {
	return func(w *WebSocketDialer) { w.header.Set(key, value) }
}

// NewWebSocketDialer validates baseURL and returns a dialer for it.
// http and https schemes are accepted and rewritten to ws and wss.
func NewWebSocketDialer(baseURL string, opts ...WSOption) (*WebSocketDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q in base url", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("transport: base url %q has no host", baseURL)
	}
	d := &WebSocketDialer{
		base:             u,
		header:           make(http.Header),
		handshakeTimeout: DefaultHandshakeTimeout,
		writeTimeout:     DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dial opens a channel for userID.
func (d *WebSocketDialer) Dial(ctx context.Context, userID string) (Conn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("transport: dial without user id")
	}
	u := *d.base
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	wd := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := wd.DialContext(ctx, u.String(), d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (http %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", u.Host, err)
	}
	return &wsConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteFrame(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) CloseGraceful(reason string) error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	deadline := time.Now().Add(c.writeTimeout)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.writeMu.Unlock()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsCleanClose reports whether err is the peer ending the channel with a
// normal or going-away close code. Anything else, including plain network
// errors, counts as an unclean termination.
func IsCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
