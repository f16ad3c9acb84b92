// File: game/chess.go
package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/notnil/chess"

	"github.com/lguibr/arena/wire"
)

// Chess is the reference two-player gamemode. Boards travel as FEN inside a
// chessboard payload, moves as UCI either bare or inside a chess_move
// payload. The optional chess960 mode starts from a random back rank.
type Chess struct{}

func NewChess() *Chess { return &Chess{} }

type chessBoard struct {
	game     *chess.Game
	chess960 bool
}

func (*Chess) Name() string { return "chess" }

func (*Chess) Players() []string { return []string{"white", "black"} }

func (*Chess) DefaultOptions() Options {
	return Options{"turn_time": 10, "chess960": false}
}

func (*Chess) Setup(opts Options) (Board, error) {
	if !opts.Bool("chess960", false) {
		return &chessBoard{game: chess.NewGame()}, nil
	}
	rank := chess960BackRank()
	fen := fmt.Sprintf("%s/pppppppp/8/8/8/8/PPPPPPPP/%s w - - 0 1",
		rank, strings.ToUpper(rank))
	option, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("chess960 setup: %w", err)
	}
	return &chessBoard{game: chess.NewGame(option), chess960: true}, nil
}

// chess960BackRank deals a random legal starting rank: bishops on opposite
// colours, king between the rooks.
func chess960BackRank() string {
	squares := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	free := func() []int {
		var idx []int
		for i, b := range squares {
			if b == 0 {
				idx = append(idx, i)
			}
		}
		return idx
	}
	squares[2*rand.Intn(4)] = 'b'
	squares[2*rand.Intn(4)+1] = 'b'
	open := free()
	squares[open[rand.Intn(len(open))]] = 'q'
	for i := 0; i < 2; i++ {
		open = free()
		squares[open[rand.Intn(len(open))]] = 'n'
	}
	open = free()
	squares[open[0]] = 'r'
	squares[open[1]] = 'k'
	squares[open[2]] = 'r'
	return string(squares)
}

func (*Chess) FilterBoard(b Board, player int) any {
	cb := b.(*chessBoard)
	return wire.NewChessBoard(cb.game.Position().String(), cb.chess960)
}

// ParseMove accepts a chess_move payload or a bare UCI string.
func (*Chess) ParseMove(raw json.RawMessage) (Move, error) {
	switch v := wire.DecodeData(raw).(type) {
	case *wire.ChessMove:
		return v.UCI, nil
	case json.RawMessage:
		var uci string
		if err := json.Unmarshal(v, &uci); err == nil && uci != "" {
			return uci, nil
		}
	}
	return nil, ErrInvalidMove
}

func (*Chess) IsMoveLegal(b Board, m Move) bool {
	uci, ok := m.(string)
	if !ok {
		return false
	}
	return decodeLegal(b.(*chessBoard).game, uci) != nil
}

func (*Chess) ApplyMove(b Board, m Move) (Board, error) {
	cb := b.(*chessBoard)
	mv := decodeLegal(cb.game, m.(string))
	if mv == nil {
		return nil, ErrInvalidMove
	}
	if err := cb.game.Move(mv); err != nil {
		return nil, err
	}
	return cb, nil
}

// decodeLegal parses a UCI move and checks it against the legal moves of the
// current position. Decoding alone accepts any well-formed square pair.
func decodeLegal(g *chess.Game, uci string) *chess.Move {
	mv, err := chess.UCINotation{}.Decode(g.Position(), uci)
	if err != nil {
		return nil
	}
	for _, valid := range g.ValidMoves() {
		if valid.S1() == mv.S1() && valid.S2() == mv.S2() && valid.Promo() == mv.Promo() {
			return valid
		}
	}
	return nil
}

func (*Chess) IsWin(b Board, player int) bool {
	switch b.(*chessBoard).game.Outcome() {
	case chess.WhiteWon:
		return player == 0
	case chess.BlackWon:
		return player == 1
	}
	return false
}

// IsLoss never fires in chess: you cannot checkmate yourself.
func (*Chess) IsLoss(b Board, player int) bool { return false }

func (*Chess) IsDraw(b Board, player int) bool {
	return b.(*chessBoard).game.Outcome() == chess.Draw
}

func (*Chess) EncodeBoard(b Board) string {
	return b.(*chessBoard).game.Position().String()
}

func (*Chess) EncodeMove(m Move, player int) string {
	return m.(string)
}
