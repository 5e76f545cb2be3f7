// Package metrics exposes the channel supervisor's instrumentation as
// Prometheus metrics. The supervisor reports through a plain callback and
// stays ignorant of Prometheus; this package owns the mapping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the channel supervisor reports. Metrics are
// registered on an instance registry, not the global one, so independent
// registries can coexist (tests, restarts).
type Registry struct {
	reg *prometheus.Registry

	// Channel state
	Status prometheus.Gauge
	Unread prometheus.Gauge

	// Connection lifecycle
	ConnectAttempts     *prometheus.CounterVec
	ConnectFailures     prometheus.Counter
	Disconnects         *prometheus.CounterVec
	ReconnectsScheduled prometheus.Counter
	RetriesExhausted    prometheus.Counter
	Wakes               *prometheus.CounterVec

	// Traffic
	Heartbeats           prometheus.Counter
	HeartbeatFailures    prometheus.Counter
	Sends                prometheus.Counter
	Frames               *prometheus.CounterVec
	FramesMalformed      prometheus.Counter
	Notifications        prometheus.Counter
	NotificationsDeduped prometheus.Counter
	PongRTT              prometheus.Histogram

	// Names the supervisor reported that this mapping does not know.
	Dropped *prometheus.CounterVec
}

// NewRegistry creates and registers all channel metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livewire_status",
			Help: "Current channel status (0=disconnected, 1=connecting, 2=connected, 3=error)",
		}),

		Unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livewire_unread",
			Help: "Notifications received since the counter was last reset",
		}),

		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livewire_connect_attempts_total",
			Help: "Dial attempts by trigger (connect, retry, wake, identity change, signed in)",
		}, []string{"trigger"}),

		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_connect_failures_total",
			Help: "Dial attempts that did not produce an open channel",
		}),

		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livewire_disconnects_total",
			Help: "Connections torn down, by close kind (clean, lost)",
		}, []string{"close"}),

		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_reconnects_scheduled_total",
			Help: "Retry timers armed after an involuntary loss",
		}),

		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_retries_exhausted_total",
			Help: "Times the retry ceiling was hit and the channel gave up",
		}),

		Wakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livewire_wakes_total",
			Help: "Wake signals delivered to the supervisor, by source",
		}, []string{"source"}),

		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_heartbeats_total",
			Help: "Ping frames written",
		}),

		HeartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_heartbeat_failures_total",
			Help: "Ping writes that failed and dropped the connection",
		}),

		Sends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_sends_total",
			Help: "Application frames written via Send",
		}),

		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livewire_frames_total",
			Help: "Inbound frames by classified type",
		}, []string{"type"}),

		FramesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_frames_malformed_total",
			Help: "Inbound frames dropped as unparseable",
		}),

		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_notifications_total",
			Help: "Notifications delivered to subscribers",
		}),

		NotificationsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livewire_notifications_deduped_total",
			Help: "Notifications suppressed as duplicates",
		}),

		PongRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livewire_pong_rtt_seconds",
			Help:    "Round trip from ping write to pong receipt in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livewire_metrics_dropped_total",
			Help: "Reports whose metric name this registry does not map",
		}, []string{"metric"}),
	}

	r.reg.MustRegister(
		r.Status,
		r.Unread,
		r.ConnectAttempts,
		r.ConnectFailures,
		r.Disconnects,
		r.ReconnectsScheduled,
		r.RetriesExhausted,
		r.Wakes,
		r.Heartbeats,
		r.HeartbeatFailures,
		r.Sends,
		r.Frames,
		r.FramesMalformed,
		r.Notifications,
		r.NotificationsDeduped,
		r.PongRTT,
		r.Dropped,
	)

	return r
}

// Callback adapts this registry to the supervisor's metrics hook. The
// returned func is safe for concurrent use.
func (r *Registry) Callback() func(metric string, value float64, tags map[string]string) {
	return func(metric string, value float64, tags map[string]string) {
		switch metric {
		case "livewire_status":
			r.Status.Set(value)
		case "livewire_unread":
			r.Unread.Set(value)
		case "livewire_connect_attempts_total":
			r.ConnectAttempts.WithLabelValues(tags["trigger"]).Add(value)
		case "livewire_connect_failures_total":
			r.ConnectFailures.Add(value)
		case "livewire_disconnects_total":
			r.Disconnects.WithLabelValues(tags["close"]).Add(value)
		case "livewire_reconnects_scheduled_total":
			r.ReconnectsScheduled.Add(value)
		case "livewire_retries_exhausted_total":
			r.RetriesExhausted.Add(value)
		case "livewire_wakes_total":
			r.Wakes.WithLabelValues(tags["source"]).Add(value)
		case "livewire_heartbeats_total":
			r.Heartbeats.Add(value)
		case "livewire_heartbeat_failures_total":
			r.HeartbeatFailures.Add(value)
		case "livewire_sends_total":
			r.Sends.Add(value)
		case "livewire_frames_total":
			r.Frames.WithLabelValues(tags["type"]).Add(value)
		case "livewire_frames_malformed_total":
			r.FramesMalformed.Add(value)
		case "livewire_notifications_total":
			r.Notifications.Add(value)
		case "livewire_notifications_deduped_total":
			r.NotificationsDeduped.Add(value)
		case "livewire_pong_rtt_seconds":
			r.PongRTT.Observe(value)
		default:
			r.Dropped.WithLabelValues(metric).Inc()
		}
	}
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for test assertions.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
