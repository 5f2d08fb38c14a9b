package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
)

// handshake waits for the first auth envelope and verifies its
// credential. Every other message type received before authentication
// is discarded without resetting the timer. The deadline is fixed at
// session start: if no auth envelope arrives within the auth timeout,
// the connection is dropped with ErrAuthTimeout.
func (s *session) handshake(ctx context.Context) error {
	deadline := s.hub.clock.Now().Add(s.hub.authTimeout)

	for {
		remaining := deadline.Sub(s.hub.clock.Now())
		if remaining <= 0 {
			return domain.ErrAuthTimeout
		}

		rctx, cancel := context.WithTimeout(ctx, remaining)
		data, err := s.transport.Receive(rctx)
		cancel()
		if err != nil {
			if rctx.Err() != nil && ctx.Err() == nil {
				return domain.ErrAuthTimeout
			}
			return fmt.Errorf("handshake read: %w", err)
		}
		s.hub.registry.Touch(s.id)

		env, err := parseEnvelope(data)
		if err != nil {
			slog.Debug("Discarding malformed pre-auth message", "connection_id", s.id.String(), "error", err)
			continue
		}
		if env.Type != MessageTypeAuth {
			slog.Debug("Discarding pre-auth message", "connection_id", s.id.String(), "type", env.Type)
			continue
		}

		identity, err := s.hub.verifier.Verify(ctx, env.Token)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrAuthRejected, err)
		}

		if err := s.hub.registry.Authenticate(s.id, identity); err != nil {
			return err
		}

		s.send(authOKEnvelope(identity.UserID))
		metrics.MessagesSentTotal.WithLabelValues(MessageTypeAuth).Inc()
		return nil
	}
}
