// File: match/engine_test.go
package match

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/wire"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type fakeReply struct {
	data  json.RawMessage
	err   error
	delay time.Duration
}

// fakeConn scripts one player's side of the protocol at the Connection level.
type fakeConn struct {
	replies []fakeReply
	pingRTT time.Duration
	pingErr error
	prints  string

	mu        sync.Mutex
	calls     []map[string]any
	pings     int
	completed bool
}

func (f *fakeConn) Call(ctx context.Context, method string, kwargs map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, kwargs)
	if len(f.replies) == 0 {
		f.mu.Unlock()
		return nil, comms.ErrConnectionNotActive
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	f.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.data, r.err
}

func (f *fakeConn) Ping(context.Context) (time.Duration, error) {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	if f.pingErr != nil {
		return 0, f.pingErr
	}
	return f.pingRTT, nil
}

func (f *fakeConn) Close(context.Context) error { return nil }

func (f *fakeConn) Complete(context.Context) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeConn) Prints() string { return f.prints }

func mustMove(t *testing.T, uci string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(wire.NewChessMove(uci))
	require.NoError(t, err)
	return data
}

func moveReply(t *testing.T, uci string) fakeReply {
	return fakeReply{data: mustMove(t, uci)}
}

func chessEngine(t *testing.T, p0, p1 *fakeConn, turnCap int, overrides game.Options) *Engine {
	t.Helper()
	mode := game.NewChess()
	opts := mode.DefaultOptions().Merge(overrides)
	eng, err := NewEngine(mode, comms.NewMiddleware([]comms.Connection{p0, p1}), opts, turnCap, zap.NewNop().Sugar())
	require.NoError(t, err)
	return eng
}

func outcomes(res game.ParsedResult) []game.Outcome {
	out := make([]game.Outcome, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.Outcome
	}
	return out
}

func TestCleanGameProducesWinner(t *testing.T) {
	// Fool's mate: white walks into the fastest possible checkmate.
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "f2f3"), moveReply(t, "g2g4")}}
	p1 := &fakeConn{replies: []fakeReply{moveReply(t, "e7e5"), moveReply(t, "d8h4")}}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, startFEN, res.InitialBoard)
	require.Equal(t, []string{"f2f3", "e7e5", "g2g4", "d8h4"}, res.Moves)
	for _, r := range res.Results {
		require.Equal(t, game.ResultValidGame, r.ResultCode)
		require.True(t, r.Healthy)
	}
	require.Equal(t, "white", res.Results[0].PlayerID)
	require.Equal(t, "black", res.Results[1].PlayerID)
	require.Equal(t, pingRounds, p0.pings)
	require.Equal(t, pingRounds, p1.pings)
	require.True(t, p0.completed)
	require.True(t, p1.completed)
}

func TestCallCarriesFilteredBoardAndClock(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "f2f3"), moveReply(t, "g2g4")}}
	p1 := &fakeConn{replies: []fakeReply{moveReply(t, "e7e5"), moveReply(t, "d8h4")}}
	eng := chessEngine(t, p0, p1, 100, nil)

	eng.Run(context.Background())

	require.NotEmpty(t, p0.calls)
	board, ok := p0.calls[0]["board"].(wire.ChessBoard)
	require.True(t, ok, "board should be the filtered chess view")
	require.Equal(t, startFEN, board.FEN)
	require.Equal(t, 10.0, p0.calls[0]["time_remaining"])
}

func TestTimedOutCallLosesTheMatch(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "f2f3")}}
	p1 := &fakeConn{replies: []fakeReply{{err: comms.ErrConnectionTimedOut}}}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Win, game.Loss}, outcomes(res))
	for _, r := range res.Results {
		require.Equal(t, game.ResultTimeout, r.ResultCode)
		require.False(t, r.Healthy, "a timeout poisons the whole match")
	}
}

func TestIllegalMoveLoses(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "e2e5")}}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultIllegalMove, res.Results[0].ResultCode)
	require.Empty(t, res.Moves)
}

func TestUnparseableMoveLoses(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{{data: json.RawMessage(`{"not": "a move"}`)}}}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultIllegalMove, res.Results[0].ResultCode)
}

func TestBrokenEntryPointLoses(t *testing.T) {
	data, err := json.Marshal(wire.NewMissingFunction("make_move is not defined"))
	require.NoError(t, err)
	p0 := &fakeConn{replies: []fakeReply{{data: data}}}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultBrokenEntryPoint, res.Results[0].ResultCode)
}

func TestExceptionTraceLoses(t *testing.T) {
	data, err := json.Marshal(wire.NewExceptionTrace("ZeroDivisionError"))
	require.NoError(t, err)
	p0 := &fakeConn{replies: []fakeReply{{data: data}}}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultException, res.Results[0].ResultCode)
}

func TestDeadConnectionIsProcessKilled(t *testing.T) {
	p0 := &fakeConn{} // no replies: every call fails as not active
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultProcessKilled, res.Results[0].ResultCode)
}

func TestHandshakeFailureDrawsAndCarriesPrints(t *testing.T) {
	p0 := &fakeConn{}
	p1 := &fakeConn{pingErr: &comms.HandshakeFailedError{Prints: "dying\nin\nstyle"}}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Draw, game.Draw}, outcomes(res))
	for _, r := range res.Results {
		require.Equal(t, game.ResultUnknown, r.ResultCode)
		require.False(t, r.Healthy)
	}
	require.Equal(t, "dying\nin\nstyle", res.Results[1].Printed)
}

func TestPingInfrastructureFailureDraws(t *testing.T) {
	p0 := &fakeConn{pingErr: errors.New("socket torn down")}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Draw, game.Draw}, outcomes(res))
	require.Equal(t, game.ResultUnknown, res.Results[0].ResultCode)
	require.Empty(t, res.Moves)
}

func TestTurnCapEndsUnfinished(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "f2f3"), moveReply(t, "g2g4")}}
	p1 := &fakeConn{replies: []fakeReply{moveReply(t, "e7e5")}}
	eng := chessEngine(t, p0, p1, 3, nil)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Draw, game.Draw}, outcomes(res))
	require.Equal(t, game.ResultGameUnfinished, res.Results[0].ResultCode)
	require.Len(t, res.Moves, 3)
}

func TestClockDebitAfterSlowMove(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{{data: mustMove(t, "f2f3"), delay: 1200 * time.Millisecond}}}
	p1 := &fakeConn{}
	eng := chessEngine(t, p0, p1, 100, game.Options{"turn_time": 1})

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Loss, game.Win}, outcomes(res))
	require.Equal(t, game.ResultTimeout, res.Results[0].ResultCode)
	// The clock ran out before the move was admitted, so it does not count.
	require.Empty(t, res.Moves)
}

func TestLatencyCompensationKeepsSlowLinkAlive(t *testing.T) {
	// 600 ms per move on a 1 s clock would lose twice over without the
	// measured 150 ms of link latency handed back each turn.
	delay := 600 * time.Millisecond
	p0 := &fakeConn{
		pingRTT: 150 * time.Millisecond,
		replies: []fakeReply{
			{data: mustMove(t, "f2f3"), delay: delay},
			{data: mustMove(t, "g2g4"), delay: delay},
		},
	}
	p1 := &fakeConn{
		pingRTT: 150 * time.Millisecond,
		replies: []fakeReply{
			{data: mustMove(t, "e7e5"), delay: delay},
			{data: mustMove(t, "b8c6"), delay: delay},
		},
	}
	eng := chessEngine(t, p0, p1, 4, game.Options{"turn_time": 1})

	res := eng.Run(context.Background())

	require.Equal(t, game.ResultGameUnfinished, res.Results[0].ResultCode)
	require.Len(t, res.Moves, 4)
}

func TestPrintsAreTruncatedToTail(t *testing.T) {
	p0 := &fakeConn{replies: []fakeReply{moveReply(t, "f2f3"), moveReply(t, "g2g4")}}
	p1 := &fakeConn{
		replies: []fakeReply{moveReply(t, "e7e5"), moveReply(t, "d8h4")},
		prints:  strings.Repeat("x", 1200) + "TAIL",
	}
	eng := chessEngine(t, p0, p1, 100, nil)

	res := eng.Run(context.Background())

	require.Len(t, res.Results[1].Printed, game.PrintLimit)
	require.True(t, strings.HasSuffix(res.Results[1].Printed, "TAIL"))
}

func TestSetupFailureIsIllegalBoard(t *testing.T) {
	mode := game.NewInARow(2)
	opts := mode.DefaultOptions().Merge(game.Options{"board_size": 2})
	p0, p1 := &fakeConn{}, &fakeConn{}
	eng, err := NewEngine(mode, comms.NewMiddleware([]comms.Connection{p0, p1}), opts, 100, zap.NewNop().Sugar())
	require.NoError(t, err)

	res := eng.Run(context.Background())

	require.Equal(t, []game.Outcome{game.Draw, game.Draw}, outcomes(res))
	require.Equal(t, game.ResultIllegalBoard, res.Results[0].ResultCode)
	require.Empty(t, p0.calls, "no move should be requested on a dead board")
}

func TestNewEngineRejectsSeatMismatch(t *testing.T) {
	mode := game.NewChess()
	_, err := NewEngine(mode, comms.NewMiddleware([]comms.Connection{&fakeConn{}}), mode.DefaultOptions(), 100, zap.NewNop().Sugar())
	require.ErrorIs(t, err, ErrPlayerCountMismatch)
}
