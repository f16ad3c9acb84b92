// File: comms/timed.go
package comms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// TimedConnection enforces a whole-game wall-clock ceiling on one player.
// The budget is shared across operations, not reset per call: every Call and
// Ping runs under a deadline of whatever remains and debits its elapsed
// time. Exhaustion is permanent; later operations fail without touching the
// peer. Close and Complete bypass the budget so teardown always proceeds.
type TimedConnection struct {
	conn Connection

	mu        sync.Mutex
	remaining time.Duration
	expired   bool
}

func NewTimedConnection(conn Connection, budget time.Duration) *TimedConnection {
	return &TimedConnection{conn: conn, remaining: budget}
}

// TimeRemaining reports the unspent budget. Never increases.
func (t *TimedConnection) TimeRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *TimedConnection) begin() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired || t.remaining <= 0 {
		t.expired = true
		return 0, ErrConnectionTimedOut
	}
	return t.remaining, nil
}

// timed runs op under the remaining budget. A deadline hit attributable to
// the budget (rather than the caller's own context) poisons the wrapper.
func (t *TimedConnection) timed(ctx context.Context, op func(context.Context) error) error {
	budget, err := t.begin()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, budget)
	start := time.Now()
	err = op(opCtx)
	cancel()
	elapsed := time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		t.mu.Lock()
		t.expired = true
		t.remaining = 0
		t.mu.Unlock()
		return ErrConnectionTimedOut
	}

	t.mu.Lock()
	t.remaining -= elapsed
	if t.remaining <= 0 {
		t.expired = true
	}
	t.mu.Unlock()
	return err
}

func (t *TimedConnection) Call(ctx context.Context, method string, kwargs map[string]any) (json.RawMessage, error) {
	var out json.RawMessage
	err := t.timed(ctx, func(ctx context.Context) error {
		var inner error
		out, inner = t.conn.Call(ctx, method, kwargs)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TimedConnection) Ping(ctx context.Context) (time.Duration, error) {
	var rtt time.Duration
	err := t.timed(ctx, func(ctx context.Context) error {
		var inner error
		rtt, inner = t.conn.Ping(ctx)
		return inner
	})
	if err != nil {
		return 0, err
	}
	return rtt, nil
}

func (t *TimedConnection) Close(ctx context.Context) error {
	return t.conn.Close(ctx)
}

func (t *TimedConnection) Complete(ctx context.Context) ([]json.RawMessage, error) {
	return t.conn.Complete(ctx)
}

func (t *TimedConnection) Prints() string {
	return t.conn.Prints()
}
