package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
)

// NotifyRequest is the dispatch entry point's input, produced by the
// surrounding application's chat and health services.
type NotifyRequest struct {
	UserID      string
	Type        domain.NotificationType
	Title       string
	Body        string
	Priority    domain.Priority
	ContextData map[string]any
}

// DeliveryResult reports what happened to one notification so the
// caller can audit it. The dispatcher keeps no history of its own.
type DeliveryResult struct {
	MessageID   uuid.UUID
	Outcome     domain.DeliveryOutcome
	Connections int
	Delivered   int
}

// Dispatcher routes notification events to a user's live connections,
// filtered by the user's per-type preference.
type Dispatcher struct {
	registry   *Registry
	prefs      domain.PreferenceStore
	audit      domain.AuditSink
	clock      clockwork.Clock
	maxRetries int
}

// NewDispatcher creates a dispatcher resolving targets through the
// registry and preferences through the external store.
func NewDispatcher(registry *Registry, prefs domain.PreferenceStore, audit domain.AuditSink, maxRetries int, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		prefs:      prefs,
		audit:      audit,
		clock:      clock,
		maxRetries: maxRetries,
	}
}

// Notify dispatches one notification. A preference that disables the
// type or sets a higher priority floor filters the message silently; a
// user with no live connection drops it. Both are normal, non-error
// outcomes. Delivery failures are retried per connection and never fail
// the dispatch as a whole.
func (d *Dispatcher) Notify(ctx context.Context, req NotifyRequest) (DeliveryResult, error) {
	if req.UserID == "" {
		return DeliveryResult{}, fmt.Errorf("notify: user id is required")
	}

	msg := &domain.NotificationMessage{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Priority:    req.Priority,
		CreatedAt:   d.clock.Now(),
		ContextData: req.ContextData,
	}

	pref := d.lookupPreference(ctx, req.UserID, req.Type)
	if !pref.Enabled || !req.Priority.AtLeast(pref.MinPriority) {
		return d.finish(ctx, msg, domain.OutcomeFiltered, 0, 0), nil
	}

	ids := d.registry.UserConnections(req.UserID)
	if len(ids) == 0 {
		return d.finish(ctx, msg, domain.OutcomeDropped, 0, 0), nil
	}

	data := notificationEnvelope(msg)
	delivered := 0
	for _, id := range ids {
		if d.registry.RetrySend(ctx, id, data, d.maxRetries) {
			delivered++
			metrics.MessagesSentTotal.WithLabelValues(MessageTypeNotification).Inc()
		}
	}

	outcome := domain.OutcomeSent
	if delivered == 0 {
		outcome = domain.OutcomeFailed
	}
	return d.finish(ctx, msg, outcome, len(ids), delivered), nil
}

// lookupPreference falls back to the default (enabled, no priority
// floor) when the store has no record or is unreachable, so a
// preference outage never suppresses notifications.
func (d *Dispatcher) lookupPreference(ctx context.Context, userID string, t domain.NotificationType) domain.NotificationPreference {
	pref, err := d.prefs.GetPreference(ctx, userID, t)
	if err != nil {
		slog.WarnContext(ctx, "Preference lookup failed, using default",
			"user_id", userID, "type", string(t), "error", err)
		return domain.DefaultPreference()
	}
	return pref
}

func (d *Dispatcher) finish(ctx context.Context, msg *domain.NotificationMessage, outcome domain.DeliveryOutcome, connections, delivered int) DeliveryResult {
	metrics.NotificationsTotal.WithLabelValues(string(outcome)).Inc()
	d.audit.Record(ctx, domain.AuditEvent{
		MessageID:   msg.ID.String(),
		UserID:      msg.UserID,
		Type:        msg.Type,
		Priority:    msg.Priority,
		Outcome:     outcome,
		Connections: connections,
		Delivered:   delivered,
		OccurredAt:  d.clock.Now(),
	})
	slog.DebugContext(ctx, "Notification dispatched",
		"message_id", msg.ID.String(), "user_id", msg.UserID, "outcome", string(outcome),
		"connections", connections, "delivered", delivered)
	return DeliveryResult{
		MessageID:   msg.ID,
		Outcome:     outcome,
		Connections: connections,
		Delivered:   delivered,
	}
}
