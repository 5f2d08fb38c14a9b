package domain

import (
	"context"
	"time"
)

// Identity is the result of a successful credential verification.
type Identity struct {
	UserID string
	Email  string
}

// CredentialVerifier validates the opaque credential carried by the
// auth handshake envelope.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// PreferenceStore resolves a user's delivery preference for a
// notification type. Implementations return DefaultPreference() when
// no record exists.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string, notificationType NotificationType) (NotificationPreference, error)
}

// AuditEvent records the outcome of one notification dispatch.
type AuditEvent struct {
	MessageID   string           `json:"message_id"`
	UserID      string           `json:"user_id"`
	Type        NotificationType `json:"type"`
	Priority    Priority         `json:"priority"`
	Outcome     DeliveryOutcome  `json:"outcome"`
	Connections int              `json:"connections"`
	Delivered   int              `json:"delivered"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// AuditSink receives delivery outcomes, fire-and-forget. Implementations
// must never block the dispatcher on sink failures.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// Transport is one persistent bidirectional client session. Send and
// Receive honor context deadlines; Close is idempotent.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Ping(ctx context.Context) error
	Close(reason CloseReason) error
}
