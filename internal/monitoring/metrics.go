// Package monitoring exposes Prometheus metrics for the upload bot.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so collaborators never need nil checks at call
// sites beyond the receiver.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled prometheus.Counter
	SessionsExpired   prometheus.Counter
	ActiveSessions    prometheus.Gauge

	UploadsTotal *prometheus.CounterVec
	UploadBytes  prometheus.Counter

	EventsRejected prometheus.Counter
}

// New creates metrics registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_sessions_started_total",
			Help: "Upload sessions opened",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_sessions_completed_total",
			Help: "Upload sessions that ran the pipeline to completion",
		}),
		SessionsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_sessions_cancelled_total",
			Help: "Upload sessions cancelled by the user or a fatal error",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_sessions_expired_total",
			Help: "Upload sessions cleared by the idle reaper",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drivedrop_sessions_active",
			Help: "Currently open upload sessions",
		}),
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drivedrop_uploads_total",
			Help: "Per-item upload outcomes",
		}, []string{"result"}),
		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_upload_bytes_total",
			Help: "Bytes successfully uploaded to the remote store",
		}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "drivedrop_events_rejected_total",
			Help: "Inbound events dropped by the authorization gate",
		}),
	}
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a session leaving the table.
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	switch outcome {
	case "completed":
		m.SessionsCompleted.Inc()
	case "expired":
		m.SessionsExpired.Inc()
	default:
		m.SessionsCancelled.Inc()
	}
}

// RecordUpload records one per-item pipeline outcome.
func (m *Metrics) RecordUpload(ok bool, bytes int64) {
	if m == nil {
		return
	}
	if ok {
		m.UploadsTotal.WithLabelValues("success").Inc()
		m.UploadBytes.Add(float64(bytes))
		return
	}
	m.UploadsTotal.WithLabelValues("failure").Inc()
}

// RecordRejected records an event dropped by the authorization gate.
func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.EventsRejected.Inc()
}
