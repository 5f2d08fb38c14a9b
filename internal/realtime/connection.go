package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

// connection is one live connection record. The registry owns the maps
// it appears in; userID and subscriptions are written only while the
// registry mutex is held. mu guards state, timestamps, and counters,
// which the send paths mutate without the registry mutex. sendMu
// serializes transport writes so per-connection delivery order is FIFO.
type connection struct {
	id        uuid.UUID
	transport domain.Transport

	// guarded by Registry.mu
	userID        string
	userEmail     string
	subscriptions map[string]struct{}

	sendMu sync.Mutex

	mu               sync.Mutex
	state            domain.ConnectionState
	lastGoodState    domain.ConnectionState
	connectedAt      time.Time
	lastActivityAt   time.Time
	retryCount       int
	recoveryAttempts int
	lastErr          string
}

func newConnection(id uuid.UUID, transport domain.Transport, now time.Time) *connection {
	return &connection{
		id:             id,
		transport:      transport,
		subscriptions:  make(map[string]struct{}),
		state:          domain.StateConnecting,
		lastGoodState:  domain.StateConnected,
		connectedAt:    now,
		lastActivityAt: now,
	}
}

func (c *connection) currentState() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// touch records activity. Called on every inbound message and every
// successful send.
func (c *connection) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateClosed {
		return
	}
	c.lastActivityAt = now
}

// markSendSuccess resets the consecutive-failure counter.
func (c *connection) markSendSuccess(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateClosed {
		return
	}
	c.lastActivityAt = now
	c.retryCount = 0
}

// markError transitions a live connection into ERROR after a send or
// heartbeat failure, remembering the last valid state for recovery.
func (c *connection) markError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case domain.StateClosed, domain.StateError:
		return
	case domain.StateConnected, domain.StateAuthenticated:
		c.lastGoodState = c.state
	}
	c.state = domain.StateError
	if err != nil {
		c.lastErr = err.Error()
	}
}

// repair restores the last valid state after a successful probe and
// clears the failure bookkeeping.
func (c *connection) repair(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case domain.StateError, domain.StateRecovering:
		c.state = c.lastGoodState
		c.recoveryAttempts = 0
		c.lastErr = ""
	case domain.StateClosed:
		return
	}
	c.lastActivityAt = now
}

func (c *connection) health() domain.ConnectionHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ConnectionHealth{
		ConnectionID:     c.id,
		Status:           "ok",
		State:            c.state,
		UserID:           c.userID,
		ConnectedAt:      c.connectedAt,
		LastActivityAt:   c.lastActivityAt,
		RetryCount:       c.retryCount,
		RecoveryAttempts: c.recoveryAttempts,
		LastError:        c.lastErr,
		IsHealthy:        c.state.IsHealthy(),
	}
}
