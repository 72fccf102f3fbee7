package lineserver

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors a Server updates. They are only exported to
// Prometheus when a Registerer is supplied.
type Metrics struct {
	ConnectedClients    prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected prometheus.Counter
	MessagesReceived    prometheus.Counter
	Kicks               prometheus.Counter
	Writes              *prometheus.CounterVec
	EventDispatch       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lineserver_connected_clients",
			Help: "Number of currently registered clients",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineserver_connections_total",
			Help: "Total accepted and registered connections",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineserver_connections_rejected_total",
			Help: "Connections closed at accept because the client cap was reached",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineserver_messages_received_total",
			Help: "Non-empty lines read from clients",
		}),
		Kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineserver_kicks_total",
			Help: "Sessions torn down by kick or server close",
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lineserver_writes_total",
			Help: "Writes to clients by operation and result",
		}, []string{"op", "result"}),
		EventDispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineserver_event_dispatch_seconds",
			Help:    "Time spent in registered event handlers",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedClients,
			m.ConnectionsTotal,
			m.ConnectionsRejected,
			m.MessagesReceived,
			m.Kicks,
			m.Writes,
			m.EventDispatch,
		)
	}
	return m
}

func (m *Metrics) write(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Writes.WithLabelValues(op, result).Inc()
}
