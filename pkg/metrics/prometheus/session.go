package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/inspectd/pkg/metrics"
)

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	activeConnections      prometheus.Gauge
	authOutcomes           *prometheus.CounterVec
	commandDuration        *prometheus.HistogramVec
	unknownCommands        prometheus.Counter
	filesWalked            prometheus.Counter
	bytesStreamed          prometheus.Counter
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). All
// methods are safe on a nil receiver, so the result can be passed to the
// adapter unconditionally.
func NewSessionMetrics() *sessionMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sessionMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_connections_force_closed_total",
				Help: "Total number of connections forcibly closed during shutdown",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "inspectd_active_connections",
				Help: "Current number of active client connections",
			},
		),
		authOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectd_auth_outcomes_total",
				Help: "Total authentication attempts by outcome",
			},
			[]string{"outcome"}, // "login", "created", "denied"
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectd_command_duration_seconds",
				Help:    "Command service time in seconds by command name",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"}, // "TRAVERSE", "SEARCH", "INSPECT", "EXIT"
		),
		unknownCommands: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_unknown_commands_total",
				Help: "Total number of rejected unknown commands",
			},
		),
		filesWalked: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_files_walked_total",
				Help: "Total number of regular files visited by directory walks",
			},
		),
		bytesStreamed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "inspectd_bytes_streamed_total",
				Help: "Total file content bytes streamed to clients",
			},
		),
	}
}

// RecordConnectionAccepted increments the accepted connections counter.
func (m *sessionMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// RecordConnectionClosed increments the closed connections counter.
func (m *sessionMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

// RecordConnectionForceClosed increments the force-closed counter.
func (m *sessionMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.connectionsForceClosed.Inc()
}

// SetActiveConnections updates the active connection gauge.
func (m *sessionMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

// RecordAuthOutcome records an authentication attempt by outcome.
func (m *sessionMetrics) RecordAuthOutcome(outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCommand records a completed command with its duration.
func (m *sessionMetrics) RecordCommand(command string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordUnknownCommand increments the rejected-command counter.
func (m *sessionMetrics) RecordUnknownCommand() {
	if m == nil {
		return
	}
	m.unknownCommands.Inc()
}

// RecordFilesWalked adds to the walked-files counter.
func (m *sessionMetrics) RecordFilesWalked(count int) {
	if m == nil {
		return
	}
	m.filesWalked.Add(float64(count))
}

// RecordBytesStreamed adds to the streamed-bytes counter.
func (m *sessionMetrics) RecordBytesStreamed(bytes int64) {
	if m == nil {
		return
	}
	m.bytesStreamed.Add(float64(bytes))
}
