package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Registry Metrics
var (
	// ConnectionsActive tracks the number of live connections in the registry
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of live connections in the registry",
		},
	)

	// ConnectionsAuthenticated tracks how many live connections completed the handshake
	ConnectionsAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connections_authenticated",
			Help: "Number of authenticated connections",
		},
	)

	// AdmissionsTotal tracks admission attempts by result
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_admissions_total",
			Help: "Connection admission attempts by result",
		},
		[]string{"result"},
	)

	// DisconnectsTotal tracks disconnects by reason
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_disconnects_total",
			Help: "Connection disconnects by reason",
		},
		[]string{"reason"},
	)

	// HandshakeFailuresTotal tracks failed authentication handshakes by reason
	HandshakeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshake_failures_total",
			Help: "Failed authentication handshakes by reason",
		},
		[]string{"reason"},
	)
)

// Delivery Metrics
var (
	// MessagesSentTotal tracks outbound messages by envelope type
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Outbound messages by envelope type",
		},
		[]string{"type"},
	)

	// SendRetriesTotal tracks individual send retry attempts
	SendRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "send_retries_total",
			Help: "Total send retry attempts",
		},
	)

	// SendFailuresTotal tracks sends that exhausted their retries
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "send_failures_total",
			Help: "Sends that exhausted all retries",
		},
	)

	// SendDuration tracks successful send latency in seconds
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "send_duration_seconds",
			Help:    "Successful send duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// BroadcastFanout tracks how many subscribers each broadcast snapshot contained
	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_fanout_size",
			Help:    "Subscriber count per broadcast snapshot",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// NotificationsTotal tracks notification dispatches by outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatches by outcome",
		},
		[]string{"outcome"},
	)
)

// Sweep Metrics
var (
	// SweepDuration tracks background sweep duration by sweep name
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Background sweep duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"sweep"},
	)

	// RecoveriesTotal tracks recovery probe results
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_recoveries_total",
			Help: "Recovery probe results",
		},
		[]string{"result"},
	)

	// StaleDisconnectsTotal tracks connections closed by the staleness sweep
	StaleDisconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_disconnects_total",
			Help: "Connections closed by the staleness sweep",
		},
	)

	// HeartbeatFailuresTotal tracks failed heartbeat probes
	HeartbeatFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_failures_total",
			Help: "Failed heartbeat probes",
		},
	)
)

// Audit Metrics
var (
	// AuditRecordFailures tracks audit events that could not be recorded
	AuditRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_record_failures_total",
			Help: "Audit events dropped due to sink errors",
		},
	)
)
