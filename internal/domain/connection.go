package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionState represents the lifecycle state of a client connection.
type ConnectionState string

const (
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateAuthenticated ConnectionState = "authenticated"
	StateRecovering    ConnectionState = "recovering"
	StateError         ConnectionState = "error"
	StateClosed        ConnectionState = "closed"
)

// IsHealthy reports whether the state counts as a live, usable connection.
func (s ConnectionState) IsHealthy() bool {
	return s == StateConnected || s == StateAuthenticated
}

// CloseReason is the reason code sent in the transport-level close frame.
type CloseReason string

const (
	ReasonQuotaExceeded     CloseReason = "quota_exceeded"
	ReasonAuthRejected      CloseReason = "auth_rejected"
	ReasonAuthTimeout       CloseReason = "auth_timeout"
	ReasonStaleConnection   CloseReason = "stale_connection"
	ReasonRecoveryExhausted CloseReason = "recovery_exhausted"
	ReasonConnectionClosed  CloseReason = "connection_closed"
	ReasonAdminDisconnect   CloseReason = "admin_disconnect"
	ReasonShutdown          CloseReason = "shutdown"
)

// ConnectionHealth is the per-connection health record exposed on the
// administrative surface. Unknown ids yield Status "not_found" rather
// than an error.
type ConnectionHealth struct {
	ConnectionID     uuid.UUID       `json:"connection_id"`
	Status           string          `json:"status"`
	State            ConnectionState `json:"state,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	ConnectedAt      time.Time       `json:"connected_at,omitempty"`
	LastActivityAt   time.Time       `json:"last_activity_at,omitempty"`
	RetryCount       int             `json:"retry_count"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	LastError        string          `json:"last_error,omitempty"`
	IsHealthy        bool            `json:"is_healthy"`
}

// RegistryStats is a point-in-time snapshot of the registry. All counts
// are computed from the live maps at call time.
type RegistryStats struct {
	TotalConnections         int `json:"total_connections"`
	AuthenticatedConnections int `json:"authenticated_connections"`
	SubscriptionCount        int `json:"subscription_count"`
	DistinctUsers            int `json:"distinct_users"`
}
