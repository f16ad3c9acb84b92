// File: server/websocket.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/wire"
)

// openingTimeout bounds how long a client may sit on an open socket before
// naming its opponents.
const openingTimeout = 30 * time.Second

// wsRequest is the opening client frame naming the sandboxed opponents. The
// human always takes the first seat.
type wsRequest struct {
	Submissions []string `json:"submissions"`
}

// wsCallFrame is a server-to-client exchange: a method invocation, or a bare
// ping when the method fields are empty.
type wsCallFrame struct {
	Type         string         `json:"type"`
	MethodName   string         `json:"method_name,omitempty"`
	MethodKwargs map[string]any `json:"method_kwargs,omitempty"`
}

type wsResultFrame struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

type wsErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// wsReply is every client answer: the bare value a harness would have
// produced for the same exchange.
type wsReply struct {
	Value json.RawMessage `json:"value"`
}

// handleWS seats the calling client as the first player of a match against
// the submissions it names. Gamemode and option overrides come from the
// query string, same as /run. Malformed client JSON tears the socket down.
func (s *Server) handleWS(ws *websocket.Conn) {
	defer ws.Close()
	ctx := ws.Request().Context()

	gamemodeID, hashes, overrides := runParams(ws.Request().URL.Query())

	ws.SetReadDeadline(time.Now().Add(openingTimeout))
	var req wsRequest
	if err := websocket.JSON.Receive(ws, &req); err != nil {
		s.log.Debugw("websocket opening frame rejected", "error", err)
		return
	}
	if len(req.Submissions) > 0 {
		hashes = normalizeHashes(req.Submissions)
	}

	result, err := s.runner.RunWithHuman(ctx, gamemodeID, newWSPlayer(ws), hashes, overrides)
	if err != nil {
		s.log.Warnw("websocket match failed", "gamemode", gamemodeID, "error", err)
		websocket.JSON.Send(ws, wsErrorFrame{Type: "error", Error: err.Error()})
		return
	}

	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := websocket.JSON.Send(ws, wsResultFrame{Type: "result", Result: result}); err != nil {
		s.log.Debugw("websocket result delivery failed", "error", err)
	}
}

// wsPlayer adapts the socket to the player connection contract, so the turn
// engine drives a human exactly like a sandboxed submission.
type wsPlayer struct {
	ws *websocket.Conn

	mu   sync.Mutex
	done bool
}

func newWSPlayer(ws *websocket.Conn) *wsPlayer { return &wsPlayer{ws: ws} }

// exchange sends one frame and blocks for the client's reply, bounded by the
// context deadline.
func (p *wsPlayer) exchange(ctx context.Context, frame any) (json.RawMessage, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done {
		return nil, comms.ErrConnectionNotActive
	}

	var deadline time.Time // the zero time clears any armed deadline
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	p.ws.SetDeadline(deadline)

	if err := websocket.JSON.Send(p.ws, frame); err != nil {
		return nil, p.fail(ctx, err)
	}
	var reply wsReply
	if err := websocket.JSON.Receive(p.ws, &reply); err != nil {
		return nil, p.fail(ctx, err)
	}
	return reply.Value, nil
}

// fail classifies an exchange error. A deadline hit surfaces as the context's
// own error so the timed wrapper can tell budget exhaustion from a dead peer.
// Any failure finishes the player: a half-read frame leaves the stream
// unusable.
func (p *wsPlayer) fail(ctx context.Context, err error) error {
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return comms.ErrConnectionNotActive
	}
	return fmt.Errorf("%w: %v", comms.ErrConnectionNotActive, err)
}

func (p *wsPlayer) Call(ctx context.Context, method string, kwargs map[string]any) (json.RawMessage, error) {
	return p.exchange(ctx, wsCallFrame{Type: "call", MethodName: method, MethodKwargs: kwargs})
}

func (p *wsPlayer) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	value, err := p.exchange(ctx, wsCallFrame{Type: "ping"})
	if err != nil {
		return 0, err
	}
	var pong string
	if err := json.Unmarshal(value, &pong); err != nil || pong != wire.Pong {
		return 0, fmt.Errorf("ping: unexpected reply %s", value)
	}
	return time.Since(start), nil
}

// Close finishes the player without touching the socket; the handler still
// owes the client its result frame.
func (p *wsPlayer) Close(ctx context.Context) error {
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()
	return nil
}

func (p *wsPlayer) Complete(ctx context.Context) ([]json.RawMessage, error) {
	return nil, p.Close(ctx)
}

// Prints is always empty: a human's output lives on their own terminal.
func (p *wsPlayer) Prints() string { return "" }
