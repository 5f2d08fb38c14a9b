package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
)

const recordTimeout = 2 * time.Second

// AuditSink appends delivery outcomes to a capped Redis stream. The
// surrounding application consumes the stream for audit logging; this
// subsystem only produces. Record is fire-and-forget: sink failures are
// counted and logged, never surfaced to the dispatcher.
type AuditSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewAuditSink creates a sink writing to the given stream, trimmed
// approximately to maxLen entries.
func NewAuditSink(rdb *redis.Client, stream string, maxLen int64) *AuditSink {
	return &AuditSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Record appends one audit event. A short timeout bounds the write so a
// slow Redis never blocks notification dispatch.
func (s *AuditSink) Record(ctx context.Context, event domain.AuditEvent) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := s.rdb.XAdd(rctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"message_id":  event.MessageID,
			"user_id":     event.UserID,
			"type":        string(event.Type),
			"priority":    string(event.Priority),
			"outcome":     string(event.Outcome),
			"connections": strconv.Itoa(event.Connections),
			"delivered":   strconv.Itoa(event.Delivered),
			"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		metrics.AuditRecordFailures.Inc()
		slog.WarnContext(ctx, "Failed to record audit event",
			"stream", s.stream, "message_id", event.MessageID, "error", err)
	}
}
