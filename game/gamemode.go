// File: game/gamemode.go
package game

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
)

var (
	// ErrUnknownGamemode reports a lookup of an unregistered gamemode id.
	ErrUnknownGamemode = errors.New("unknown gamemode")

	// ErrInvalidMove reports a move payload the gamemode cannot read.
	ErrInvalidMove = errors.New("invalid move")
)

// Board and Move are owned by the gamemode; the engine passes them around
// without looking inside.
type (
	Board = any
	Move  = any
)

// Gamemode is one turn-based rule set. Implementations hold no I/O and no
// cross-match state; the engine owns sequencing, clocks and players.
type Gamemode interface {
	Name() string
	// Players returns the ordered slot labels. Its length is the player count.
	Players() []string
	// DefaultOptions lists the options this gamemode understands, with their
	// defaults. turn_time is always present.
	DefaultOptions() Options

	Setup(opts Options) (Board, error)
	// FilterBoard reduces the board to what the given player may see. The
	// view must be JSON-marshallable.
	FilterBoard(b Board, player int) any
	ParseMove(raw json.RawMessage) (Move, error)
	IsMoveLegal(b Board, m Move) bool
	ApplyMove(b Board, m Move) (Board, error)
	IsWin(b Board, player int) bool
	IsLoss(b Board, player int) bool
	IsDraw(b Board, player int) bool
	EncodeBoard(b Board) string
	EncodeMove(m Move, player int) string
}

func PlayerCount(g Gamemode) int {
	return len(g.Players())
}

// Options are merged gamemode settings. They cross three borders with three
// value shapes: YAML config (typed), JSON payloads (float64 numbers) and
// query strings (strings), so the getters coerce.
type Options map[string]any

// Merge returns a copy of o overlaid with over. Neither input is modified.
func (o Options) Merge(over Options) Options {
	merged := make(Options, len(o)+len(over))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}

func (o Options) Int(key string, fallback int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (o Options) Float(key string, fallback float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (o Options) Bool(key string, fallback bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// TurnTime is the per-player chess-clock allowance in seconds.
func (o Options) TurnTime() int {
	return o.Int("turn_time", 10)
}

// Registry resolves gamemode ids to implementations.
type Registry struct {
	modes map[string]Gamemode
}

func NewRegistry(modes ...Gamemode) *Registry {
	r := &Registry{modes: make(map[string]Gamemode, len(modes))}
	for _, m := range modes {
		r.modes[m.Name()] = m
	}
	return r
}

func (r *Registry) Get(id string) (Gamemode, error) {
	mode, ok := r.modes[id]
	if !ok {
		return nil, ErrUnknownGamemode
	}
	return mode, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
