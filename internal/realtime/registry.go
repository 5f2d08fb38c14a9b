package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/metrics"
	"github.com/sy22478/HealthMate-sub003/internal/platform/retry"
)

const sendRetryBackoff = 50 * time.Millisecond

// Limits holds the registry's admission quotas.
type Limits struct {
	MaxConnections        int
	MaxConnectionsPerUser int
}

// Registry owns the set of live connections and the derived indexes.
// All state sharing between the handshake, broadcaster, sweeper, and
// dispatcher goes through it, keyed by connection id.
type Registry struct {
	clock        clockwork.Clock
	limits       Limits
	writeTimeout time.Duration

	mu        sync.RWMutex
	conns     map[uuid.UUID]*connection
	byUser    map[string]map[uuid.UUID]struct{}
	byChannel map[string]map[uuid.UUID]struct{}
}

// NewRegistry creates an empty registry with the given quotas.
func NewRegistry(limits Limits, writeTimeout time.Duration, clock clockwork.Clock) *Registry {
	return &Registry{
		clock:        clock,
		limits:       limits,
		writeTimeout: writeTimeout,
		conns:        make(map[uuid.UUID]*connection),
		byUser:       make(map[string]map[uuid.UUID]struct{}),
		byChannel:    make(map[string]map[uuid.UUID]struct{}),
	}
}

// Admit registers a new transport and returns its connection id, or
// ErrQuotaExceeded when the global cap is reached. The record starts in
// CONNECTING; callers invoke MarkConnected once the transport handshake
// is complete.
func (r *Registry) Admit(transport domain.Transport) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.limits.MaxConnections {
		metrics.AdmissionsTotal.WithLabelValues("rejected_quota").Inc()
		return uuid.Nil, domain.ErrQuotaExceeded
	}

	id := uuid.New()
	r.conns[id] = newConnection(id, transport, r.clock.Now())

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	metrics.ConnectionsActive.Set(float64(len(r.conns)))
	slog.Debug("Connection admitted", "connection_id", id.String(), "total", len(r.conns))
	return id, nil
}

// MarkConnected transitions a CONNECTING record to CONNECTED.
func (r *Registry) MarkConnected(id uuid.UUID) {
	c, ok := r.get(id)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateConnecting {
		c.state = domain.StateConnected
		c.lastGoodState = domain.StateConnected
	}
}

// Authenticate binds a verified identity to a CONNECTED record. It
// fails with ErrUserQuotaExceeded when the user already holds the
// per-user maximum of authenticated connections; existing sessions are
// never evicted.
func (r *Registry) Authenticate(id uuid.UUID, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.ErrConnectionNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateConnected {
		return domain.ErrNotAuthenticated
	}

	if len(r.byUser[identity.UserID]) >= r.limits.MaxConnectionsPerUser {
		return domain.ErrUserQuotaExceeded
	}

	c.userID = identity.UserID
	c.userEmail = identity.Email
	c.state = domain.StateAuthenticated
	c.lastGoodState = domain.StateAuthenticated

	set, ok := r.byUser[identity.UserID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byUser[identity.UserID] = set
	}
	set[id] = struct{}{}

	metrics.ConnectionsAuthenticated.Inc()
	slog.Info("Connection authenticated", "connection_id", id.String(), "user_id", identity.UserID)
	return nil
}

// Disconnect removes a connection from the registry, its indexes, and
// closes the transport. Idempotent: unknown or already-closed ids are a
// no-op, never an error. Safe to call concurrently with an in-flight
// sweep touching the same id.
func (r *Registry) Disconnect(id uuid.UUID, reason domain.CloseReason) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)

	wasAuthenticated := c.userID != ""
	if wasAuthenticated {
		if set, ok := r.byUser[c.userID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byUser, c.userID)
			}
		}
	}
	for channel := range c.subscriptions {
		if set, ok := r.byChannel[channel]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byChannel, channel)
			}
		}
	}
	metrics.ConnectionsActive.Set(float64(len(r.conns)))
	r.mu.Unlock()

	c.mu.Lock()
	c.state = domain.StateClosed
	c.mu.Unlock()

	if wasAuthenticated {
		metrics.ConnectionsAuthenticated.Dec()
	}
	metrics.DisconnectsTotal.WithLabelValues(string(reason)).Inc()

	if err := c.transport.Close(reason); err != nil {
		slog.Debug("Transport close failed", "connection_id", id.String(), "error", err)
	}
	slog.Info("Connection closed", "connection_id", id.String(), "reason", string(reason))
}

// Subscribe adds a channel to an authenticated connection's set and the
// reverse index. Subscribing twice is a no-op.
func (r *Registry) Subscribe(id uuid.UUID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	if c.currentState() != domain.StateAuthenticated {
		return domain.ErrNotAuthenticated
	}

	c.subscriptions[channel] = struct{}{}
	set, ok := r.byChannel[channel]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byChannel[channel] = set
	}
	set[id] = struct{}{}
	return nil
}

// Unsubscribe removes both sides of the index. Unsubscribing from a
// channel the connection never subscribed to is a no-op.
func (r *Registry) Unsubscribe(id uuid.UUID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(c.subscriptions, channel)
	if set, ok := r.byChannel[channel]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byChannel, channel)
		}
	}
}

// Stats computes registry counts from the live maps at call time.
func (r *Registry) Stats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	for _, c := range r.conns {
		if c.currentState() == domain.StateAuthenticated {
			authenticated++
		}
	}
	subscriptions := 0
	for _, set := range r.byChannel {
		subscriptions += len(set)
	}
	return domain.RegistryStats{
		TotalConnections:         len(r.conns),
		AuthenticatedConnections: authenticated,
		SubscriptionCount:        subscriptions,
		DistinctUsers:            len(r.byUser),
	}
}

// Health returns the health record for a connection. Unknown ids yield
// a well-formed not_found record rather than an error so monitoring
// tooling never needs to special-case lookups.
func (r *Registry) Health(id uuid.UUID) domain.ConnectionHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.ConnectionHealth{ConnectionID: id, Status: "not_found"}
	}
	return c.health()
}

// ChannelSubscribers returns a snapshot of the ids subscribed to a
// channel. Connections that subscribe after the snapshot do not appear.
func (r *Registry) ChannelSubscribers(channel string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return idsOf(r.byChannel[channel])
}

// UserConnections returns a snapshot of a user's connection ids.
func (r *Registry) UserConnections(userID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return idsOf(r.byUser[userID])
}

// HealthyIDs returns a snapshot of ids in CONNECTED or AUTHENTICATED.
func (r *Registry) HealthyIDs() []uuid.UUID {
	return r.idsWhere(func(s domain.ConnectionState) bool { return s.IsHealthy() })
}

// ErroredIDs returns a snapshot of ids in ERROR.
func (r *Registry) ErroredIDs() []uuid.UUID {
	return r.idsWhere(func(s domain.ConnectionState) bool { return s == domain.StateError })
}

// StaleIDs returns a snapshot of ids whose last activity is older than
// the cutoff.
func (r *Registry) StaleIDs(cutoff time.Time) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uuid.UUID
	for id, c := range r.conns {
		c.mu.Lock()
		stale := c.state != domain.StateClosed && c.lastActivityAt.Before(cutoff)
		c.mu.Unlock()
		if stale {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) idsWhere(pred func(domain.ConnectionState) bool) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uuid.UUID
	for id, c := range r.conns {
		if pred(c.currentState()) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Touch records inbound activity on a connection.
func (r *Registry) Touch(id uuid.UUID) {
	if c, ok := r.get(id); ok {
		c.touch(r.clock.Now())
	}
}

// Send delivers data to a connection with a single attempt. The
// registry mutex is not held during the write; the per-connection send
// mutex keeps delivery order FIFO.
func (r *Registry) Send(ctx context.Context, id uuid.UUID, data []byte) error {
	c, ok := r.get(id)
	if !ok {
		return domain.ErrConnectionNotFound
	}
	return r.sendOnce(ctx, c, data)
}

func (r *Registry) sendOnce(ctx context.Context, c *connection, data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.currentState() == domain.StateClosed {
		return domain.ErrConnectionNotFound
	}

	sctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	start := r.clock.Now()
	if err := c.transport.Send(sctx, data); err != nil {
		return err
	}
	metrics.SendDuration.Observe(r.clock.Since(start).Seconds())
	c.markSendSuccess(r.clock.Now())
	return nil
}

// RetrySend attempts delivery up to maxRetries+1 times, returning true
// on the first success. On exhaustion the connection is marked ERROR
// with the failure recorded, and false is returned. Delivery to a
// removed connection is skipped, not an error.
func (r *Registry) RetrySend(ctx context.Context, id uuid.UUID, data []byte, maxRetries int) bool {
	c, ok := r.get(id)
	if !ok {
		return false
	}

	policy := retry.Policy{
		MaxAttempts:    maxRetries + 1,
		InitialBackoff: sendRetryBackoff,
		Clock:          r.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			metrics.SendRetriesTotal.Inc()
			slog.Debug("Retrying send", "connection_id", id.String(), "attempt", attempt, "error", err)
		},
	}
	classify := func(err error) retry.Action {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			return retry.Stop
		}
		return retry.Retry
	}

	err := retry.DoVoid(ctx, policy, classify, func() error {
		return r.sendOnce(ctx, c, data)
	})
	if err == nil {
		return true
	}

	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		// Connection was removed mid-delivery; nothing to mark.
		return false
	}

	r.markSendFailure(c, err)
	return false
}

func (r *Registry) markSendFailure(c *connection, err error) {
	c.mu.Lock()
	if c.state == domain.StateClosed {
		c.mu.Unlock()
		return
	}
	c.retryCount++
	c.mu.Unlock()

	c.markError(err)
	metrics.SendFailuresTotal.Inc()
	slog.Warn("Send exhausted retries, connection marked errored",
		"connection_id", c.id.String(), "error", err)
}

// MarkError transitions a live connection to ERROR, recording the cause.
// Used by the heartbeat sweep when a probe write fails.
func (r *Registry) MarkError(id uuid.UUID, err error) {
	if c, ok := r.get(id); ok {
		c.markError(err)
	}
}

// Probe sends a transport-level ping. On success the connection is
// repaired: the last valid state is restored, recovery bookkeeping is
// cleared, and activity is recorded.
func (r *Registry) Probe(ctx context.Context, id uuid.UUID) error {
	c, ok := r.get(id)
	if !ok {
		return domain.ErrConnectionNotFound
	}

	c.sendMu.Lock()
	err := c.transport.Ping(ctx)
	c.sendMu.Unlock()
	if err != nil {
		return err
	}

	c.repair(r.clock.Now())
	return nil
}

// BeginRecovery moves an ERROR connection to RECOVERING. Returns false
// if the connection is gone or not in ERROR.
func (r *Registry) BeginRecovery(id uuid.UUID) bool {
	c, ok := r.get(id)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateError {
		return false
	}
	c.state = domain.StateRecovering
	return true
}

// FailRecovery returns a RECOVERING connection to ERROR and increments
// its attempt counter, returning the new count so the sweep can enforce
// the recovery cap.
func (r *Registry) FailRecovery(id uuid.UUID, err error) int {
	c, ok := r.get(id)
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateRecovering {
		return c.recoveryAttempts
	}
	c.state = domain.StateError
	c.recoveryAttempts++
	if err != nil {
		c.lastErr = err.Error()
	}
	return c.recoveryAttempts
}

// ReconnectUser probes each of a user's connections, repairing the ones
// that respond. Returns true if at least one probe succeeded. This is
// an explicit administrative healing operation, not automatic.
func (r *Registry) ReconnectUser(ctx context.Context, userID string) bool {
	repaired := false
	for _, id := range r.UserConnections(userID) {
		if err := r.Probe(ctx, id); err != nil {
			slog.Debug("Reconnect probe failed", "connection_id", id.String(), "user_id", userID, "error", err)
			continue
		}
		repaired = true
	}
	return repaired
}

// Shutdown disconnects every live connection with reason "shutdown".
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Disconnect(id, domain.ReasonShutdown)
	}
}

func (r *Registry) get(id uuid.UUID) (*connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func idsOf(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
