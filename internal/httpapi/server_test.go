package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/livewire/internal/live"
	"github.com/latticenet/livewire/internal/metrics"
	"github.com/latticenet/livewire/internal/store"
	"github.com/latticenet/livewire/internal/wire"
)

type archiveFake struct {
	rows []store.Archived
	err  error
}

func (a *archiveFake) EnsureSchema(context.Context) error { return nil }

func (a *archiveFake) Archive(context.Context, wire.Notification, time.Time) error { return nil }

func (a *archiveFake) Recent(_ context.Context, limit int) ([]store.Archived, error) {
	if a.err != nil {
		return nil, a.err
	}
	if limit < len(a.rows) {
		return a.rows[:limit], nil
	}
	return a.rows, nil
}

func (a *archiveFake) Close() error { return nil }

func newTestServer(t *testing.T, snap live.Snapshot, mutate func(*Deps)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Port = 0
	deps := Deps{Snapshot: func() live.Snapshot { return snap }}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := NewServer(cfg, deps, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzHealthy(t *testing.T) {
	s := newTestServer(t, live.Snapshot{Status: live.StatusConnected}, nil)

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, "connected", body["channel"])
}

func TestHealthzTransientsAreHealthy(t *testing.T) {
	for _, st := range []live.Status{live.StatusDisconnected, live.StatusConnecting} {
		s := newTestServer(t, live.Snapshot{Status: st}, nil)
		rec := get(t, s.Handler(), "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code, st.String())
	}
}

func TestHealthzDegradedWhenChannelGaveUp(t *testing.T) {
	s := newTestServer(t, live.Snapshot{
		Status:    live.StatusError,
		LastError: "retries exhausted",
	}, nil)

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, "error", body["channel"])
	assert.Equal(t, "retries exhausted", body["error"])
}

func TestStatusReturnsSnapshot(t *testing.T) {
	s := newTestServer(t, live.Snapshot{
		Status:  live.StatusConnected,
		Unread:  3,
		Retries: 0,
		UserID:  "u-1",
	}, nil)

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"connected","unread":3,"retries":0,"user_id":"u-1","connected_at":"0001-01-01T00:00:00Z"}`,
		rec.Body.String())
}

func TestMetricsRouteOnlyWhenWired(t *testing.T) {
	bare := newTestServer(t, live.Snapshot{}, nil)
	rec := get(t, bare.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reg := metrics.NewRegistry()
	reg.Callback()("livewire_status", 2, nil)
	wired := newTestServer(t, live.Snapshot{}, func(d *Deps) { d.Metrics = reg.Handler() })
	rec = get(t, wired.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livewire_status 2")
}

func TestRecentReturnsArchivedRows(t *testing.T) {
	recv := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &archiveFake{rows: []store.Archived{
		{ID: "n-2", Title: "second", ReceivedAt: recv},
		{ID: "n-1", Title: "first", ReceivedAt: recv.Add(-time.Minute)},
	}}
	s := newTestServer(t, live.Snapshot{}, func(d *Deps) { d.Archive = fake })

	rec := get(t, s.Handler(), "/notifications/recent")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count         int              `json:"count"`
		Notifications []store.Archived `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Notifications, 2)
	assert.Equal(t, "n-2", body.Notifications[0].ID)
}

func TestRecentLimitValidation(t *testing.T) {
	s := newTestServer(t, live.Snapshot{}, func(d *Deps) { d.Archive = &archiveFake{} })

	for _, bad := range []string{"0", "-1", "501", "abc"} {
		rec := get(t, s.Handler(), "/notifications/recent?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}

	rec := get(t, s.Handler(), "/notifications/recent?limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecentArchiveFailure(t *testing.T) {
	s := newTestServer(t, live.Snapshot{}, func(d *Deps) {
		d.Archive = &archiveFake{err: errors.New("connection refused")}
	})

	rec := get(t, s.Handler(), "/notifications/recent")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "archive unavailable")
}

func TestRecentRouteAbsentWithoutArchive(t *testing.T) {
	s := newTestServer(t, live.Snapshot{}, nil)
	rec := get(t, s.Handler(), "/notifications/recent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := newTestServer(t, live.Snapshot{}, nil)
	rec := get(t, s.Handler(), "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestSnapshotDependencyRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	_, err := NewServer(cfg, Deps{}, zerolog.Nop())
	require.Error(t, err)
}
