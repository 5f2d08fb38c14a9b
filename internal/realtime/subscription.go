package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/metrics"
)

// Broadcaster fans a message out to every subscriber of a channel. It
// holds no state of its own; the subscription index lives in the
// registry and the broadcaster works from id snapshots.
type Broadcaster struct {
	registry   *Registry
	clock      clockwork.Clock
	maxRetries int
}

// NewBroadcaster creates a broadcaster delivering through the registry's
// retrying send.
func NewBroadcaster(registry *Registry, maxRetries int, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{
		registry:   registry,
		clock:      clock,
		maxRetries: maxRetries,
	}
}

// Broadcast delivers message to every connection subscribed to channel
// at call time. The subscriber set is snapshotted before any delivery:
// connections subscribing afterwards do not receive this message, and
// connections removed mid-delivery are skipped without error. Each
// recipient is delivered independently; per-connection order is FIFO
// but no order holds across connections. Returns the delivered count.
func (b *Broadcaster) Broadcast(ctx context.Context, channel string, message any) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("marshal broadcast message: %w", err)
	}

	ids := b.registry.ChannelSubscribers(channel)
	metrics.BroadcastFanout.Observe(float64(len(ids)))
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.registry.RetrySend(ctx, id, data, b.maxRetries) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	slog.Debug("Broadcast complete", "channel", channel, "subscribers", len(ids), "delivered", delivered)
	return delivered, nil
}
