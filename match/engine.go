// File: match/engine.go
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/wire"
)

const (
	// DefaultTurnCap stops matches that never converge; hitting it is a draw
	// with code game-unfinished.
	DefaultTurnCap = 1000

	// pingRounds round trips are averaged per player before the match.
	pingRounds = 5

	// maxPingCompensation caps how much free time a slow-responding player
	// can claim back per move.
	maxPingCompensation = 200 * time.Millisecond
)

// Engine drives one match: latency calibration, the strictly sequential turn
// loop with per-player chess clocks, and result assembly. Run never fails;
// every failure mode becomes an outcome vector and a result code.
type Engine struct {
	mode    game.Gamemode
	mw      *comms.Middleware
	opts    game.Options
	turnCap int
	log     *zap.SugaredLogger
}

func NewEngine(mode game.Gamemode, mw *comms.Middleware, opts game.Options, turnCap int, log *zap.SugaredLogger) (*Engine, error) {
	if mw.PlayerCount() != game.PlayerCount(mode) {
		return nil, fmt.Errorf("%w: gamemode %s seats %d, got %d connections",
			ErrPlayerCountMismatch, mode.Name(), game.PlayerCount(mode), mw.PlayerCount())
	}
	if turnCap <= 0 {
		turnCap = DefaultTurnCap
	}
	return &Engine{mode: mode, mw: mw, opts: opts, turnCap: turnCap, log: log}, nil
}

// Run plays the match to completion and returns the full account of it.
func (e *Engine) Run(ctx context.Context) game.ParsedResult {
	n := e.mw.PlayerCount()

	latency, failed, err := e.calibrate(ctx)
	if err != nil {
		e.log.Warnw("latency calibration failed", "gamemode", e.mode.Name(), "player", failed, "error", err)
		var hs *comms.HandshakeFailedError
		var overrides map[int]string
		if errors.As(err, &hs) {
			overrides = map[int]string{failed: hs.Prints}
		}
		return e.assemble(ctx, "", nil, allDraw(n), game.ResultUnknown, overrides)
	}

	board, err := e.mode.Setup(e.opts)
	if err != nil {
		e.log.Errorw("board setup failed", "gamemode", e.mode.Name(), "error", err)
		return e.assemble(ctx, "", nil, allDraw(n), game.ResultIllegalBoard, nil)
	}
	initial := e.mode.EncodeBoard(board)

	clocks := make([]time.Duration, n)
	for i := range clocks {
		clocks[i] = time.Duration(e.opts.TurnTime()) * time.Second
	}

	moves, outcomes, code, overrides := e.playLoop(ctx, board, clocks, latency)
	return e.assemble(ctx, initial, moves, outcomes, code, overrides)
}

// calibrate measures each player's average round trip. The per-player mean
// is clamped so a deliberately slow responder cannot buy itself extra clock.
// Returns the cross-player mean, or the failing player's index and error.
func (e *Engine) calibrate(ctx context.Context) (time.Duration, int, error) {
	n := e.mw.PlayerCount()
	var total time.Duration
	for p := 0; p < n; p++ {
		var sum time.Duration
		for i := 0; i < pingRounds; i++ {
			rtt, err := e.mw.Ping(ctx, p)
			if err != nil {
				return 0, p, err
			}
			sum += rtt
		}
		avg := sum / pingRounds
		if avg > maxPingCompensation {
			avg = maxPingCompensation
		}
		total += avg
	}
	return total / time.Duration(n), -1, nil
}

// playLoop is the sequential turn loop. Exactly one call is outstanding
// across all players at any moment. The clock is debited after the call
// returns; there is no pre-move clock check.
func (e *Engine) playLoop(ctx context.Context, board game.Board, clocks []time.Duration, latency time.Duration) ([]string, []game.Outcome, game.ResultCode, map[int]string) {
	n := e.mw.PlayerCount()
	var moves []string
	for turn := 0; turn < e.turnCap; turn++ {
		p := turn % n

		view := e.mode.FilterBoard(board, p)
		start := time.Now()
		raw, err := e.mw.Call(ctx, p, "make_move", map[string]any{
			"board":          view,
			"time_remaining": clocks[p].Seconds(),
		})
		if err != nil {
			var hs *comms.HandshakeFailedError
			switch {
			case errors.As(err, &hs):
				return moves, allDraw(n), game.ResultUnknown, map[int]string{p: hs.Prints}
			case errors.Is(err, comms.ErrConnectionTimedOut):
				return moves, soloLoss(n, p), game.ResultTimeout, nil
			default:
				return moves, soloLoss(n, p), game.ResultProcessKilled, nil
			}
		}

		clocks[p] -= time.Since(start) - latency
		if clocks[p] <= 0 {
			return moves, soloLoss(n, p), game.ResultTimeout, nil
		}

		switch wire.DecodeData(raw).(type) {
		case *wire.MissingFunction:
			return moves, soloLoss(n, p), game.ResultBrokenEntryPoint, nil
		case *wire.ExceptionTrace:
			return moves, soloLoss(n, p), game.ResultException, nil
		}

		mv, err := e.mode.ParseMove(raw)
		if err != nil || !e.mode.IsMoveLegal(board, mv) {
			return moves, soloLoss(n, p), game.ResultIllegalMove, nil
		}

		moves = append(moves, e.mode.EncodeMove(mv, p))
		board, err = e.mode.ApplyMove(board, mv)
		if err != nil {
			e.log.Errorw("gamemode rejected a vetted move", "gamemode", e.mode.Name(), "error", err)
			return moves, allDraw(n), game.ResultIllegalBoard, nil
		}

		switch {
		case e.mode.IsWin(board, p):
			return moves, soloWin(n, p), game.ResultValidGame, nil
		case e.mode.IsLoss(board, p):
			return moves, soloLoss(n, p), game.ResultValidGame, nil
		case e.mode.IsDraw(board, p):
			return moves, allDraw(n), game.ResultValidGame, nil
		}
	}
	return moves, allDraw(n), game.ResultGameUnfinished, nil
}

// assemble drains every connection, then folds outcomes, the match-wide
// result code and the print buffers into the final record. A player's print
// can be overridden when the authoritative text travelled inside an error.
func (e *Engine) assemble(ctx context.Context, initial string, moves []string, outcomes []game.Outcome, code game.ResultCode, overrides map[int]string) game.ParsedResult {
	if _, err := e.mw.Complete(ctx); err != nil {
		e.log.Debugw("draining connections after match", "error", err)
	}
	labels := e.mode.Players()
	results := make([]game.SingleResult, len(outcomes))
	for i := range outcomes {
		printed := e.mw.Prints(i)
		if text, ok := overrides[i]; ok {
			printed = text
		}
		results[i] = game.SingleResult{
			Outcome:    outcomes[i],
			Healthy:    code == game.ResultValidGame,
			PlayerID:   labels[i],
			ResultCode: code,
			Printed:    game.TruncatePrint(printed),
		}
	}
	if moves == nil {
		moves = []string{}
	}
	return game.ParsedResult{InitialBoard: initial, Moves: moves, Results: results}
}

func allDraw(n int) []game.Outcome {
	out := make([]game.Outcome, n)
	for i := range out {
		out[i] = game.Draw
	}
	return out
}

// soloLoss marks p the loser and everyone else a winner.
func soloLoss(n, p int) []game.Outcome {
	out := make([]game.Outcome, n)
	for i := range out {
		out[i] = game.Win
	}
	out[p] = game.Loss
	return out
}

// soloWin marks p the winner and everyone else a loser.
func soloWin(n, p int) []game.Outcome {
	out := make([]game.Outcome, n)
	for i := range out {
		out[i] = game.Loss
	}
	out[p] = game.Win
	return out
}
