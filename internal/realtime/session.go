package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
)

// Hub ties the registry and the credential verifier together and runs
// one session per admitted transport. The HTTP layer hands each
// upgraded connection to ServeTransport, which blocks until the
// connection is gone.
type Hub struct {
	registry    *Registry
	verifier    domain.CredentialVerifier
	clock       clockwork.Clock
	authTimeout time.Duration
}

// NewHub creates a hub serving sessions against the given registry.
func NewHub(registry *Registry, verifier domain.CredentialVerifier, authTimeout time.Duration, clock clockwork.Clock) *Hub {
	return &Hub{
		registry:    registry,
		verifier:    verifier,
		clock:       clock,
		authTimeout: authTimeout,
	}
}

// ServeTransport admits the transport, runs the authentication
// handshake, then pumps inbound messages until disconnect. Admission
// rejections close the transport immediately.
func (h *Hub) ServeTransport(ctx context.Context, transport domain.Transport) {
	id, err := h.registry.Admit(transport)
	if err != nil {
		slog.Warn("Connection rejected at admission", "error", err)
		_ = transport.Close(domain.ReasonQuotaExceeded)
		return
	}
	h.registry.MarkConnected(id)

	s := &session{
		id:        id,
		transport: transport,
		hub:       h,
	}
	s.run(ctx)
}

type session struct {
	id        uuid.UUID
	transport domain.Transport
	hub       *Hub
}

func (s *session) run(ctx context.Context) {
	if err := s.handshake(ctx); err != nil {
		s.failHandshake(err)
		return
	}
	s.readLoop(ctx)
}

// failHandshake reports the failure to the client where possible and
// disconnects with the mapped reason code.
func (s *session) failHandshake(err error) {
	reason := domain.ReasonConnectionClosed
	switch {
	case errors.Is(err, domain.ErrAuthTimeout):
		reason = domain.ReasonAuthTimeout
		s.send(errorEnvelope(string(reason), "no auth message received in time"))
	case errors.Is(err, domain.ErrAuthRejected):
		reason = domain.ReasonAuthRejected
		s.send(errorEnvelope(string(reason), "credential rejected"))
	case errors.Is(err, domain.ErrUserQuotaExceeded):
		reason = domain.ReasonQuotaExceeded
		s.send(errorEnvelope(string(reason), "too many connections for user"))
	}
	metrics.HandshakeFailuresTotal.WithLabelValues(string(reason)).Inc()
	s.hub.registry.Disconnect(s.id, reason)
}

// readLoop handles inbound envelopes after authentication. Every
// inbound message counts as activity. A read error means the client is
// gone and the connection is removed.
func (s *session) readLoop(ctx context.Context) {
	for {
		data, err := s.transport.Receive(ctx)
		if err != nil {
			s.hub.registry.Disconnect(s.id, domain.ReasonConnectionClosed)
			return
		}
		s.hub.registry.Touch(s.id)

		env, err := parseEnvelope(data)
		if err != nil {
			slog.Debug("Discarding malformed message", "connection_id", s.id.String(), "error", err)
			continue
		}

		switch env.Type {
		case MessageTypeSubscribe:
			if env.Channel == "" {
				s.send(errorEnvelope("invalid_channel", "subscribe requires a channel"))
				continue
			}
			if err := s.hub.registry.Subscribe(s.id, env.Channel); err != nil {
				s.send(errorEnvelope("subscribe_failed", err.Error()))
			}
		case MessageTypeUnsubscribe:
			s.hub.registry.Unsubscribe(s.id, env.Channel)
		case MessageTypePing:
			s.send(pongEnvelope())
		case MessageTypePong:
			// activity already recorded
		default:
			slog.Debug("Ignoring unexpected message type", "connection_id", s.id.String(), "type", env.Type)
		}
	}
}

func (s *session) send(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteDeadline)
	defer cancel()
	if err := s.hub.registry.Send(ctx, s.id, data); err != nil {
		slog.Debug("Session send failed", "connection_id", s.id.String(), "error", err)
	}
}
