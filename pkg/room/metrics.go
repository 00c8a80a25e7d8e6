package room

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for rooms and their connections.
type Metrics struct {
	activeSessions  prometheus.Gauge
	connections     *prometheus.CounterVec
	framesForwarded prometheus.Counter
	staleEvents     *prometheus.CounterVec
	engineLoads     *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
	writeDuration   prometheus.Histogram
}

// Connection results recorded by ObserveConnection.
const (
	ConnAccepted    = "accepted"
	ConnMissingID   = "missing_session"
	ConnInvalidRoom = "invalid_room"
	ConnRateLimited = "rate_limited"
	ConnFailed      = "failed"
)

// NewMetrics registers the collectors on reg.
// A nil reg leaves them unregistered, which tests and embedders use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "roomsync"

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_sessions",
			Help:      "Number of sessions joined to a room engine",
		}),

		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),

		framesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_forwarded_total",
			Help:      "Inbound frames handed to a room engine",
		}),

		staleEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stale_events_total",
			Help:      "Lifecycle events dropped because the connection was not joined",
		}, []string{"event"}),

		engineLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "engine_loads_total",
			Help:      "Room engine constructions by source",
		}, []string{"source"}),

		snapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "snapshot_writes_total",
			Help:      "Durable snapshot writes by result",
		}, []string{"result"}),

		writeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Snapshot write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveConnection counts a connection attempt.
func (m *Metrics) ObserveConnection(result string) {
	m.connections.WithLabelValues(result).Inc()
}

func (m *Metrics) observeWrite(start time.Time, err error) {
	m.writeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.snapshotWrites.WithLabelValues("error").Inc()
		return
	}
	m.snapshotWrites.WithLabelValues("ok").Inc()
}
