package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/sy22478/HealthMate-sub003/internal/config"
	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/realtime"
)

// connectionAdmin is the registry surface the administrative API needs.
type connectionAdmin interface {
	Stats() domain.RegistryStats
	Health(id uuid.UUID) domain.ConnectionHealth
	Disconnect(id uuid.UUID, reason domain.CloseReason)
	ReconnectUser(ctx context.Context, userID string) bool
}

// sessionHub serves one admitted transport until it disconnects.
type sessionHub interface {
	ServeTransport(ctx context.Context, transport domain.Transport)
}

// notificationDispatcher is the notify entry point consumed by the
// surrounding application's services.
type notificationDispatcher interface {
	Notify(ctx context.Context, req realtime.NotifyRequest) (realtime.DeliveryResult, error)
}

// channelBroadcaster fans a message out to a channel's subscribers.
type channelBroadcaster interface {
	Broadcast(ctx context.Context, channel string, message any) (int, error)
}

// HealthCheck is a named readiness check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	admin        connectionAdmin
	hub          sessionHub
	dispatcher   notificationDispatcher
	broadcaster  channelBroadcaster
	admission    *ConnectionRateLimiter
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the websocket endpoint, the collaborator API, the
// administrative API, the health probes, and the metrics handler.
func NewServer(cfg *config.Config, admin connectionAdmin, hub sessionHub, dispatcher notificationDispatcher, broadcaster channelBroadcaster, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		admin:        admin,
		hub:          hub,
		dispatcher:   dispatcher,
		broadcaster:  broadcaster,
		admission:    NewConnectionRateLimiter(cfg.AdmissionRatePerSecond, cfg.AdmissionBurst, clock),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
