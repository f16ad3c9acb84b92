// File: game/inarow.go
package game

import (
	"encoding/json"
	"fmt"
)

// InARow is connect-k on a square board for two or more players. It exists
// mostly to exercise the multi-player paths: slots beyond two, rating groups
// with several drawers, and self-play fields.
type InARow struct {
	labels []string
}

func NewInARow(players int) *InARow {
	if players < 2 {
		players = 2
	}
	if players > 8 {
		players = 8
	}
	labels := make([]string, players)
	for i := range labels {
		labels[i] = fmt.Sprintf("player%d", i+1)
	}
	return &InARow{labels: labels}
}

type rowBoard struct {
	size      int
	winLength int
	grid      [][]int // 0 empty, 1-based player marks
	turn      int     // whose move is next
	moves     int
	lastRow   int
	lastCol   int
}

type rowMove struct {
	Row int
	Col int
}

func (g *InARow) Name() string { return "inarow" }

func (g *InARow) Players() []string { return g.labels }

func (g *InARow) DefaultOptions() Options {
	return Options{"turn_time": 10, "board_size": 7, "win_length": 4}
}

func (g *InARow) Setup(opts Options) (Board, error) {
	size := opts.Int("board_size", 7)
	winLength := opts.Int("win_length", 4)
	if size < 3 || size > 32 {
		return nil, fmt.Errorf("board_size %d out of range", size)
	}
	if winLength < 3 || winLength > size {
		return nil, fmt.Errorf("win_length %d out of range for board_size %d", winLength, size)
	}
	grid := make([][]int, size)
	for i := range grid {
		grid[i] = make([]int, size)
	}
	return &rowBoard{size: size, winLength: winLength, grid: grid, lastRow: -1, lastCol: -1}, nil
}

// FilterBoard exposes everything: in-a-row has no hidden information.
func (g *InARow) FilterBoard(b Board, player int) any {
	rb := b.(*rowBoard)
	return map[string]any{
		"size":       rb.size,
		"win_length": rb.winLength,
		"turn":       rb.turn,
		"grid":       rb.grid,
	}
}

func (g *InARow) ParseMove(raw json.RawMessage) (Move, error) {
	var m struct {
		Row *int `json:"row"`
		Col *int `json:"col"`
	}
	if err := json.Unmarshal(raw, &m); err != nil || m.Row == nil || m.Col == nil {
		return nil, ErrInvalidMove
	}
	return rowMove{Row: *m.Row, Col: *m.Col}, nil
}

func (g *InARow) IsMoveLegal(b Board, m Move) bool {
	mv, ok := m.(rowMove)
	if !ok {
		return false
	}
	rb := b.(*rowBoard)
	return mv.Row >= 0 && mv.Row < rb.size &&
		mv.Col >= 0 && mv.Col < rb.size &&
		rb.grid[mv.Row][mv.Col] == 0
}

func (g *InARow) ApplyMove(b Board, m Move) (Board, error) {
	rb := b.(*rowBoard)
	mv, ok := m.(rowMove)
	if !ok || !g.IsMoveLegal(b, m) {
		return nil, ErrInvalidMove
	}
	rb.grid[mv.Row][mv.Col] = rb.turn + 1
	rb.lastRow, rb.lastCol = mv.Row, mv.Col
	rb.moves++
	rb.turn = (rb.turn + 1) % len(g.labels)
	return rb, nil
}

func (g *InARow) IsWin(b Board, player int) bool {
	rb := b.(*rowBoard)
	if rb.lastRow < 0 || rb.grid[rb.lastRow][rb.lastCol] != player+1 {
		return false
	}
	return lineThrough(rb.grid, rb.lastRow, rb.lastCol, rb.winLength)
}

func (g *InARow) IsLoss(b Board, player int) bool { return false }

func (g *InARow) IsDraw(b Board, player int) bool {
	rb := b.(*rowBoard)
	return rb.moves == rb.size*rb.size
}

func (g *InARow) EncodeBoard(b Board) string {
	rb := b.(*rowBoard)
	out := make([]byte, 0, rb.size*(rb.size+1))
	for r, row := range rb.grid {
		if r > 0 {
			out = append(out, '/')
		}
		for _, mark := range row {
			out = append(out, byte('0'+mark))
		}
	}
	return string(out)
}

func (g *InARow) EncodeMove(m Move, player int) string {
	mv := m.(rowMove)
	return fmt.Sprintf("%d,%d", mv.Row, mv.Col)
}

// lineThrough reports whether the stone at (row, col) sits on a run of at
// least winLength equal marks in any of the four directions.
func lineThrough(grid [][]int, row, col, winLength int) bool {
	size := len(grid)
	mark := grid[row][col]
	if mark == 0 {
		return false
	}
	dirs := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for r, c := row+d[0], col+d[1]; r >= 0 && r < size && c >= 0 && c < size && grid[r][c] == mark; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; r >= 0 && r < size && c >= 0 && c < size && grid[r][c] == mark; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= winLength {
			return true
		}
	}
	return false
}
