package realtime

import (
	"context"
	"sync"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

// fakeTransport is a scriptable in-memory transport for registry,
// sweeper, and session tests.
type fakeTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	sendCalls   int
	failSends   int // fail this many sends before succeeding
	sendErr     error
	pingCalls   int
	pingErr     error
	closed      bool
	closeReason domain.CloseReason

	recvCh chan []byte
	done   chan struct{}

	beforeSend func() // optional hook, called without the lock
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recvCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (t *fakeTransport) Send(_ context.Context, data []byte) error {
	if t.beforeSend != nil {
		t.beforeSend()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendCalls++
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.failSends > 0 {
		t.failSends--
		return domain.ErrSendFailure
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.sent = append(t.sent, buf)
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-t.recvCh:
		if !ok {
			return nil, domain.ErrConnectionNotFound
		}
		return data, nil
	case <-t.done:
		return nil, domain.ErrConnectionNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Ping(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pingCalls++
	return t.pingErr
}

func (t *fakeTransport) Close(reason domain.CloseReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.closeReason = reason
	close(t.done)
	return nil
}

func (t *fakeTransport) deliver(data []byte) {
	t.recvCh <- data
}

func (t *fakeTransport) sentMessages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) setPingErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pingErr = err
}

func (t *fakeTransport) isClosed() (bool, domain.CloseReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closeReason
}
