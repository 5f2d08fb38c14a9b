package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType categorizes notifications for preference lookup.
type NotificationType string

const (
	TypeHealthAlert NotificationType = "health_alert"
	TypeReminder    NotificationType = "reminder"
	TypeSystem      NotificationType = "system"
)

// Priority is the urgency of a notification. Priorities form a fixed
// total order: low < normal < high < urgent < emergency.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

var priorityRank = map[Priority]int{
	PriorityLow:       0,
	PriorityNormal:    1,
	PriorityHigh:      2,
	PriorityUrgent:    3,
	PriorityEmergency: 4,
}

// Rank returns the position of p in the priority order. Unknown values
// rank as low so a malformed preference never suppresses delivery.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// AtLeast reports whether p >= min in the priority order.
func (p Priority) AtLeast(min Priority) bool {
	return p.Rank() >= min.Rank()
}

// NotificationMessage is a single notification event. Produced by an
// external collaborator and consumed exactly once by the dispatcher;
// this subsystem never persists it.
type NotificationMessage struct {
	ID          uuid.UUID        `json:"id"`
	UserID      string           `json:"user_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Priority    Priority         `json:"priority"`
	CreatedAt   time.Time        `json:"created_at"`
	ContextData map[string]any   `json:"context_data,omitempty"`
}

// NotificationPreference is a user's per-type delivery preference,
// read-only from this subsystem's perspective.
type NotificationPreference struct {
	Enabled     bool     `json:"enabled"`
	MinPriority Priority `json:"min_priority"`
}

// DefaultPreference applies when the preference store has no record:
// everything enabled, no priority floor.
func DefaultPreference() NotificationPreference {
	return NotificationPreference{Enabled: true, MinPriority: PriorityLow}
}

// DeliveryOutcome classifies the result of a notify call.
type DeliveryOutcome string

const (
	// OutcomeSent means at least one live connection received the message.
	OutcomeSent DeliveryOutcome = "sent"
	// OutcomeFiltered means the user's preference suppressed the message.
	OutcomeFiltered DeliveryOutcome = "filtered"
	// OutcomeDropped means the user had no live connection.
	OutcomeDropped DeliveryOutcome = "dropped"
	// OutcomeFailed means every delivery attempt exhausted its retries.
	OutcomeFailed DeliveryOutcome = "failed"
)
