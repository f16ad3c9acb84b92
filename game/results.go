// File: game/results.go
package game

// Outcome of one player's participation in a match. Values are stable
// because the database stores them as integers.
type Outcome int

const (
	Loss Outcome = 0
	Draw Outcome = 1
	Win  Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	default:
		return "draw"
	}
}

// ResultCode classifies how a match ended. The engine produces one code per
// match; every player's result row carries that same code, so a single
// misbehaving player marks the whole match unhealthy.
type ResultCode string

const (
	ResultValidGame        ResultCode = "valid-game"
	ResultTimeout          ResultCode = "timeout"
	ResultIllegalMove      ResultCode = "illegal-move"
	ResultBrokenEntryPoint ResultCode = "broken-entry-point"
	ResultException        ResultCode = "exception"
	ResultProcessKilled    ResultCode = "process-killed"
	ResultGameUnfinished   ResultCode = "game-unfinished"
	ResultUnknown          ResultCode = "unknown-result-type"
	ResultIllegalBoard     ResultCode = "illegal-board"
)

// PrintLimit bounds how much of a player's output survives on a result.
// The tail is kept: the end of the stream is where crashes explain
// themselves.
const PrintLimit = 1000

// TruncatePrint keeps the trailing PrintLimit characters of s.
func TruncatePrint(s string) string {
	runes := []rune(s)
	if len(runes) <= PrintLimit {
		return s
	}
	return string(runes[len(runes)-PrintLimit:])
}

// SingleResult is one player's share of a finished match.
type SingleResult struct {
	Outcome    Outcome    `json:"outcome"`
	Healthy    bool       `json:"healthy"`
	PlayerID   string     `json:"player_id"`
	ResultCode ResultCode `json:"result_code"`
	Printed    string     `json:"printed"`
}

// ParsedResult is the complete account of one match. The turn engine always
// produces one, whatever happened: failures become outcome vectors, never
// errors.
type ParsedResult struct {
	InitialBoard string         `json:"initial_board"`
	Moves        []string       `json:"moves"`
	Results      []SingleResult `json:"submission_results"`
}
