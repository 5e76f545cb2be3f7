package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	userID    chan string
	closeCode chan int
}

// notifyEndpoint upgrades, records the userId query param, echoes text
// frames back and reports the close code the client sends.
func notifyEndpoint(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{
		userID:    make(chan string, 8),
		closeCode: make(chan int, 8),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.userID <- r.URL.Query().Get("userId")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					rec.closeCode <- ce.Code
				}
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialCarriesUserID(t *testing.T) {
	srv, rec := notifyEndpoint(t)
	d, err := NewWebSocketDialer(wsURL(srv))
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "u-42")
	require.NoError(t, err)
	defer conn.Close()

	select {
	case got := <-rec.userID:
		assert.Equal(t, "u-42", got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}
}

func TestWriteAndReadFrame(t *testing.T) {
	srv, _ := notifyEndpoint(t)
	d, err := NewWebSocketDialer(wsURL(srv))
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "u-42")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(map[string]any{"action": "ping", "timestamp": 123}))

	raw, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"ping","timestamp":123}`, string(raw))
}

func TestCloseGracefulSendsNormalClosure(t *testing.T) {
	srv, rec := notifyEndpoint(t)
	d, err := NewWebSocketDialer(wsURL(srv))
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "u-42")
	require.NoError(t, err)
	require.NoError(t, conn.CloseGraceful("signed out"))

	select {
	case code := <-rec.closeCode:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
}

func TestDialRewritesHTTPSchemes(t *testing.T) {
	srv, rec := notifyEndpoint(t)

	// Plain http base url still dials as ws.
	d, err := NewWebSocketDialer(srv.URL)
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "u-1")
	require.NoError(t, err)
	conn.Close()

	select {
	case <-rec.userID:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake not observed")
	}
}

func TestNewWebSocketDialerRejectsBadURLs(t *testing.T) {
	for _, base := range []string{"ftp://example.com/live", "ws://", "://nope"} {
		_, err := NewWebSocketDialer(base)
		assert.Error(t, err, "base %q", base)
	}
}

func TestDialRequiresUserID(t *testing.T) {
	d, err := NewWebSocketDialer("ws://example.com/live")
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), "  ")
	assert.Error(t, err)
}

func TestDialFailsWhenServerDown(t *testing.T) {
	srv, _ := notifyEndpoint(t)
	base := wsURL(srv)
	srv.Close()

	d, err := NewWebSocketDialer(base, WithHandshakeTimeout(time.Second))
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), "u-42")
	assert.Error(t, err)
}

func TestIsCleanClose(t *testing.T) {
	assert.True(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.True(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.False(t, IsCleanClose(context.Canceled))
}
