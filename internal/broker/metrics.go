package broker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the broker's Prometheus instrumentation. Registered
// sessions is a gauge because it tracks present state (§8 invariant #5);
// everything else is a monotonic counter.
type Metrics struct {
	registeredSessions prometheus.Gauge
	turnsCompleted      prometheus.Counter
	captures            prometheus.Counter
	pastes              prometheus.Counter
	pasteErrors         *prometheus.CounterVec
	bytesRelayed        prometheus.Counter
	connections         prometheus.Counter
}

// NewMetrics constructs and registers the broker's metrics against reg.
// Pass prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registeredSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "registered_sessions",
			Help:      "Number of sessions currently present in the broker's session table.",
		}),
		turnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "turns_completed_total",
			Help:      "Total turn_completed requests accepted.",
		}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "captures_total",
			Help:      "Total successful capture requests.",
		}),
		pastes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "pastes_total",
			Help:      "Total successful paste requests.",
		}),
		pasteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "paste_errors_total",
			Help:      "Total failed paste requests by error reason.",
		}, []string{"reason"}),
		bytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "bytes_relayed_total",
			Help:      "Total bytes written into the relay buffer by capture.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clippy",
			Subsystem: "broker",
			Name:      "connections_total",
			Help:      "Total accepted client and wrapper connections.",
		}),
	}
	reg.MustRegister(
		m.registeredSessions,
		m.turnsCompleted,
		m.captures,
		m.pastes,
		m.pasteErrors,
		m.bytesRelayed,
		m.connections,
	)
	return m
}
