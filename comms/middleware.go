// File: comms/middleware.go
package comms

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Middleware is the turn engine's only handle on the players: an ordered
// vector of connections indexed by player slot. It knows nothing about game
// rules.
type Middleware struct {
	conns []Connection
}

func NewMiddleware(conns []Connection) *Middleware {
	return &Middleware{conns: conns}
}

func (m *Middleware) PlayerCount() int {
	return len(m.conns)
}

func (m *Middleware) Call(ctx context.Context, player int, method string, kwargs map[string]any) (json.RawMessage, error) {
	return m.conns[player].Call(ctx, method, kwargs)
}

func (m *Middleware) Ping(ctx context.Context, player int) (time.Duration, error) {
	return m.conns[player].Ping(ctx)
}

func (m *Middleware) Prints(player int) string {
	return m.conns[player].Prints()
}

// Complete closes every connection and gathers whatever the peers still had
// queued. Per-connection failures are collected rather than short-circuiting
// so one dead player cannot block another's teardown.
func (m *Middleware) Complete(ctx context.Context) ([][]json.RawMessage, error) {
	residues := make([][]json.RawMessage, len(m.conns))
	var errs []error
	for i, conn := range m.conns {
		residue, err := conn.Complete(ctx)
		residues[i] = residue
		if err != nil {
			errs = append(errs, err)
		}
	}
	return residues, errors.Join(errs...)
}
