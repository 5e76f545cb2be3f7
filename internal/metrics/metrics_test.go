package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestCallbackMapsEveryName(t *testing.T) {
	r := NewRegistry()
	cb := r.Callback()

	cb("livewire_status", 2, nil)
	cb("livewire_unread", 7, nil)
	cb("livewire_connect_attempts_total", 1, map[string]string{"trigger": "connect"})
	cb("livewire_connect_attempts_total", 1, map[string]string{"trigger": "retry"})
	cb("livewire_connect_failures_total", 1, nil)
	cb("livewire_disconnects_total", 1, map[string]string{"close": "lost"})
	cb("livewire_reconnects_scheduled_total", 1, nil)
	cb("livewire_retries_exhausted_total", 1, nil)
	cb("livewire_wakes_total", 1, map[string]string{"source": "resume"})
	cb("livewire_heartbeats_total", 1, nil)
	cb("livewire_heartbeat_failures_total", 1, nil)
	cb("livewire_sends_total", 1, nil)
	cb("livewire_frames_total", 1, map[string]string{"type": "notification"})
	cb("livewire_frames_malformed_total", 1, nil)
	cb("livewire_notifications_total", 1, nil)
	cb("livewire_notifications_deduped_total", 1, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Status))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.Unread))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConnectAttempts.WithLabelValues("connect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConnectAttempts.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConnectFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Disconnects.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ReconnectsScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RetriesExhausted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Wakes.WithLabelValues("resume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Heartbeats))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HeartbeatFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Sends))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Frames.WithLabelValues("notification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FramesMalformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.NotificationsDeduped))
}

func TestCallbackObservesPongRTT(t *testing.T) {
	r := NewRegistry()
	cb := r.Callback()

	cb("livewire_pong_rtt_seconds", 0.042, nil)
	cb("livewire_pong_rtt_seconds", 0.108, nil)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	var hist *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "livewire_pong_rtt_seconds" {
			hist = mf
		}
	}
	require.NotNil(t, hist, "histogram not gathered")
	require.Len(t, hist.GetMetric(), 1)
	h := hist.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 0.150, h.GetSampleSum(), 1e-9)
}

func TestCallbackCountsUnknownNames(t *testing.T) {
	r := NewRegistry()
	cb := r.Callback()

	cb("livewire_surprise_total", 1, nil)
	cb("livewire_surprise_total", 1, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Dropped.WithLabelValues("livewire_surprise_total")))
}

func TestHandlerServesTextFormat(t *testing.T) {
	r := NewRegistry()
	r.Callback()("livewire_status", 2, nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := readAll(t, resp)
	assert.Contains(t, body, "livewire_status 2")
	assert.Contains(t, body, "# HELP livewire_status")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.Callback()("livewire_sends_total", 1, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Sends))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Sends))
}
