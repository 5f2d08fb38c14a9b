package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

const defaultWriteDeadline = 5 * time.Second

// wsTransport adapts a gorilla WebSocket connection to domain.Transport.
// The registry serializes writes through the per-connection send mutex,
// but the transport keeps its own write mutex so control frames from
// Close never interleave with a data frame.
type wsTransport struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketTransport wraps an upgraded gorilla connection.
func NewWebSocketTransport(conn *websocket.Conn, clock clockwork.Clock) domain.Transport {
	return &wsTransport{conn: conn, clock: clock}
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.applyWriteDeadline(ctx)
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = t.conn.SetReadDeadline(deadline)

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

func (t *wsTransport) Ping(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.applyWriteDeadline(ctx)
	if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return fmt.Errorf("websocket ping: %w", err)
	}
	return nil
}

// Close sends a close frame carrying the reason code, then closes the
// underlying connection. Idempotent.
func (t *wsTransport) Close(reason domain.CloseReason) error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason))
		_ = t.conn.SetWriteDeadline(t.clock.Now().Add(defaultWriteDeadline))
		_ = t.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = t.conn.Close()
	})
	return nil
}

func (t *wsTransport) applyWriteDeadline(ctx context.Context) {
	deadline := t.clock.Now().Add(defaultWriteDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
}
