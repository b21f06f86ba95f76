// Package observability exposes session activity as Prometheus metrics.
// The embedder calls the hooks (the serve command records session opens and
// aborts; the adapters in pkg/adapters call none) and owns the registry
// wiring.
package observability

import (
	"github.com/aretw0/tether/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates session counters and table gauges.
type Metrics struct {
	SessionsActive prometheus.Gauge
	FramesIn       *prometheus.CounterVec
	FramesOut      *prometheus.CounterVec
	Aborts         prometheus.Counter
	TableExports   prometheus.Gauge
	TableImports   prometheus.Gauge
}

// New creates and registers the metric set. Pass nil to skip registration
// (e.g. in tests that only exercise the hooks).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "frames_received_total",
			Help:      "Inbound frames by kind.",
		}, []string{"kind"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "frames_sent_total",
			Help:      "Outbound frames by kind.",
		}, []string{"kind"}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tether",
			Name:      "aborts_total",
			Help:      "Sessions torn down by an abort.",
		}),
		TableExports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "table_exports",
			Help:      "Export table size of the most recently observed session.",
		}),
		TableImports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tether",
			Name:      "table_imports",
			Help:      "Import table size of the most recently observed session.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SessionsActive, m.FramesIn, m.FramesOut, m.Aborts, m.TableExports, m.TableImports)
	}
	return m
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed records a finished session.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// FrameReceived counts one inbound frame by kind.
func (m *Metrics) FrameReceived(kind string) {
	m.FramesIn.WithLabelValues(kind).Inc()
}

// FrameSent counts one outbound frame by kind.
func (m *Metrics) FrameSent(kind string) {
	m.FramesOut.WithLabelValues(kind).Inc()
}

// SessionBroken counts an abort teardown.
func (m *Metrics) SessionBroken() {
	m.Aborts.Inc()
}

// ObserveStats publishes a session's table sizes.
func (m *Metrics) ObserveStats(stats domain.Stats) {
	m.TableExports.Set(float64(stats.Exports))
	m.TableImports.Set(float64(stats.Imports))
}
