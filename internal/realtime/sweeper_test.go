package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

func testSweeper(r *Registry, clock clockwork.Clock) *Sweeper {
	return NewSweeper(r, SweeperConfig{
		HeartbeatInterval:   30 * time.Second,
		CleanupInterval:     5 * time.Minute,
		RecoveryInterval:    time.Minute,
		ConnectionTimeout:   time.Hour,
		ProbeTimeout:        5 * time.Second,
		MaxRecoveryAttempts: 3,
	}, clock)
}

func TestSweeper_HeartbeatProbesHealthyConnections(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	_, trGood := admitAuthenticated(t, r, "u1")
	bad, trBad := admitAuthenticated(t, r, "u2")
	trBad.setPingErr(errors.New("write: broken pipe"))

	s.heartbeat(context.Background())

	trGood.mu.Lock()
	goodPings := trGood.pingCalls
	trGood.mu.Unlock()
	assert.Equal(t, 1, goodPings)

	// The failed probe moves the connection to ERROR; the healthy one
	// stays put and is not probed again until the next tick.
	assert.Equal(t, domain.StateError, r.Health(bad).State)
	assert.Len(t, r.HealthyIDs(), 1)
}

func TestSweeper_HeartbeatSkipsErroredConnections(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	errored, tr := admitAuthenticated(t, r, "u1")
	r.MarkError(errored, errors.New("down"))

	s.heartbeat(context.Background())

	tr.mu.Lock()
	pings := tr.pingCalls
	tr.mu.Unlock()
	assert.Zero(t, pings, "errored connections belong to the recovery sweep")
}

func TestSweeper_CleanupDisconnectsStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := testRegistryWithClock(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5}, clock)
	s := testSweeper(r, clock)

	stale, trStale := admitAuthenticated(t, r, "u1")

	clock.Advance(2 * time.Hour)
	fresh, trFresh := admitAuthenticated(t, r, "u2")

	s.cleanup(context.Background())

	closed, reason := trStale.isClosed()
	assert.True(t, closed)
	assert.Equal(t, domain.ReasonStaleConnection, reason)
	assert.Equal(t, "not_found", r.Health(stale).Status)

	closed, _ = trFresh.isClosed()
	assert.False(t, closed)
	assert.Equal(t, domain.StateAuthenticated, r.Health(fresh).State)
}

func TestSweeper_RecoverRestoresConnection(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	id, _ := admitAuthenticated(t, r, "u1")
	r.MarkError(id, errors.New("write timeout"))

	s.recover(context.Background())

	health := r.Health(id)
	assert.Equal(t, domain.StateAuthenticated, health.State)
	assert.Equal(t, 0, health.RecoveryAttempts)
	assert.Empty(t, health.LastError)
}

func TestSweeper_RecoverCountsFailedAttempts(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	id, tr := admitAuthenticated(t, r, "u1")
	tr.setPingErr(errors.New("unreachable"))
	r.MarkError(id, errors.New("write timeout"))

	s.recover(context.Background())

	health := r.Health(id)
	assert.Equal(t, domain.StateError, health.State)
	assert.Equal(t, 1, health.RecoveryAttempts)

	s.recover(context.Background())
	assert.Equal(t, 2, r.Health(id).RecoveryAttempts)
}

func TestSweeper_RecoverExhaustionDisconnects(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	id, tr := admitAuthenticated(t, r, "u1")
	tr.setPingErr(errors.New("unreachable"))
	r.MarkError(id, errors.New("write timeout"))

	// MaxRecoveryAttempts is 3: the fourth failed attempt closes it.
	for i := 0; i < 3; i++ {
		s.recover(context.Background())
		require.Equal(t, domain.StateError, r.Health(id).State)
	}
	s.recover(context.Background())

	closed, reason := tr.isClosed()
	assert.True(t, closed)
	assert.Equal(t, domain.ReasonRecoveryExhausted, reason)
	assert.Equal(t, "not_found", r.Health(id).Status)
}

func TestSweeper_RecoverSuccessAfterFailuresResetsAttempts(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := testSweeper(r, clockwork.NewRealClock())

	id, tr := admitAuthenticated(t, r, "u1")
	tr.setPingErr(errors.New("unreachable"))
	r.MarkError(id, errors.New("write timeout"))

	s.recover(context.Background())
	s.recover(context.Background())
	require.Equal(t, 2, r.Health(id).RecoveryAttempts)

	tr.setPingErr(nil)
	s.recover(context.Background())

	health := r.Health(id)
	assert.Equal(t, domain.StateAuthenticated, health.State)
	assert.Equal(t, 0, health.RecoveryAttempts, "a recovered connection starts with a clean slate")
	assert.Empty(t, health.LastError)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	r := testRegistry(Limits{MaxConnections: 10, MaxConnectionsPerUser: 5})
	s := NewSweeper(r, SweeperConfig{
		HeartbeatInterval:   10 * time.Millisecond,
		CleanupInterval:     10 * time.Millisecond,
		RecoveryInterval:    10 * time.Millisecond,
		ConnectionTimeout:   time.Hour,
		ProbeTimeout:        time.Second,
		MaxRecoveryAttempts: 3,
	}, clockwork.NewRealClock())

	id, tr := admitAuthenticated(t, r, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Let a few heartbeat ticks fire against the live connection.
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.pingCalls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
	assert.Equal(t, domain.StateAuthenticated, r.Health(id).State)
}
