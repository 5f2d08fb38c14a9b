package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
	"github.com/sy22478/HealthMate-sub003/internal/platform/correlation"
)

// SweeperConfig holds the intervals and bounds for the three background
// sweeps. None of the timeouts mean "wait forever".
type SweeperConfig struct {
	HeartbeatInterval   time.Duration
	CleanupInterval     time.Duration
	RecoveryInterval    time.Duration
	ConnectionTimeout   time.Duration
	ProbeTimeout        time.Duration
	MaxRecoveryAttempts int
}

// Sweeper runs the heartbeat sender, the staleness sweep, and the
// recovery sweep as independently ticking loops sharing one shutdown
// signal. Each sweep takes its own id snapshot before mutating.
type Sweeper struct {
	registry *Registry
	clock    clockwork.Clock
	cfg      SweeperConfig
}

// NewSweeper creates a sweeper over the given registry.
func NewSweeper(registry *Registry, cfg SweeperConfig, clock clockwork.Clock) *Sweeper {
	return &Sweeper{
		registry: registry,
		clock:    clock,
		cfg:      cfg,
	}
}

// Run starts the three sweep loops and blocks until ctx is cancelled
// and all loops have exited.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		sweep    func(context.Context)
	}{
		{"heartbeat", s.cfg.HeartbeatInterval, s.heartbeat},
		{"cleanup", s.cfg.CleanupInterval, s.cleanup},
		{"recovery", s.cfg.RecoveryInterval, s.recover},
	}

	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLoop(ctx, loop.name, loop.interval, loop.sweep)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) runLoop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context)) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Sweep loop stopped", "sweep", name)
			return
		case <-ticker.Chan():
			sweepCtx := correlation.WithID(ctx, correlation.NewID())
			start := s.clock.Now()
			sweep(sweepCtx)
			metrics.SweepDuration.WithLabelValues(name).Observe(s.clock.Since(start).Seconds())
		}
	}
}

// heartbeat sends a lightweight probe to every CONNECTED or
// AUTHENTICATED connection. A failed probe write moves the connection
// to ERROR for the recovery sweep to pick up.
func (s *Sweeper) heartbeat(ctx context.Context) {
	ids := s.registry.HealthyIDs()
	for _, id := range ids {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		err := s.registry.Probe(pctx, id)
		cancel()
		if err != nil {
			metrics.HeartbeatFailuresTotal.Inc()
			s.registry.MarkError(id, err)
			slog.WarnContext(ctx, "Heartbeat failed, connection marked errored",
				"connection_id", id.String(), "error", err)
		}
	}
	if len(ids) > 0 {
		slog.DebugContext(ctx, "Heartbeat sweep complete", "probed", len(ids))
	}
}

// cleanup disconnects connections whose last activity is older than the
// connection timeout.
func (s *Sweeper) cleanup(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.ConnectionTimeout)
	for _, id := range s.registry.StaleIDs(cutoff) {
		metrics.StaleDisconnectsTotal.Inc()
		s.registry.Disconnect(id, domain.ReasonStaleConnection)
		slog.InfoContext(ctx, "Stale connection removed", "connection_id", id.String())
	}
}

// recover probes each ERROR connection once. Success restores the last
// valid state and clears the failure bookkeeping; failure counts
// against the recovery cap, and a connection over the cap is
// force-disconnected rather than left errored without bound.
func (s *Sweeper) recover(ctx context.Context) {
	for _, id := range s.registry.ErroredIDs() {
		if !s.registry.BeginRecovery(id) {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		err := s.registry.Probe(pctx, id)
		cancel()

		if err == nil {
			metrics.RecoveriesTotal.WithLabelValues("recovered").Inc()
			slog.InfoContext(ctx, "Connection recovered", "connection_id", id.String())
			continue
		}

		attempts := s.registry.FailRecovery(id, err)
		if attempts > s.cfg.MaxRecoveryAttempts {
			metrics.RecoveriesTotal.WithLabelValues("exhausted").Inc()
			s.registry.Disconnect(id, domain.ReasonRecoveryExhausted)
			slog.WarnContext(ctx, "Recovery exhausted, connection closed",
				"connection_id", id.String(), "attempts", attempts)
		} else {
			metrics.RecoveriesTotal.WithLabelValues("failed").Inc()
			slog.DebugContext(ctx, "Recovery probe failed",
				"connection_id", id.String(), "attempts", attempts, "error", err)
		}
	}
}
