package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

// PreferenceStore reads per-user notification preferences from the
// web application's user_notification_preferences table. The table is
// owned and written by the surrounding application; this subsystem only
// reads it.
type PreferenceStore struct {
	pool *pgxpool.Pool
}

// NewPreferenceStore creates a store over the shared pool.
func NewPreferenceStore(pool *pgxpool.Pool) *PreferenceStore {
	return &PreferenceStore{pool: pool}
}

const getPreferenceQuery = `
SELECT enabled, min_priority
FROM user_notification_preferences
WHERE user_id = $1 AND notification_type = $2`

// GetPreference returns the user's preference for a notification type.
// A missing row yields the default preference (enabled, no priority
// floor), not an error.
func (s *PreferenceStore) GetPreference(ctx context.Context, userID string, notificationType domain.NotificationType) (domain.NotificationPreference, error) {
	var (
		enabled     bool
		minPriority string
	)
	err := s.pool.QueryRow(ctx, getPreferenceQuery, userID, string(notificationType)).Scan(&enabled, &minPriority)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultPreference(), nil
	}
	if err != nil {
		return domain.NotificationPreference{}, fmt.Errorf("failed to get preference: %w", err)
	}

	return domain.NotificationPreference{
		Enabled:     enabled,
		MinPriority: domain.Priority(minPriority),
	}, nil
}
