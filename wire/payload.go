// File: wire/payload.go
package wire

import "encoding/json"

// Payload tags understood on top of RESULT data. Unknown tags pass through
// as raw JSON.
const (
	TagMissingFunction = "missing_function_error"
	TagFailsafe        = "failsafe_error"
	TagExceptionTrace  = "exception_trace"
	TagChessBoard      = "chessboard"
	TagChessMove       = "chess_move"
)

// MissingFunction reports that the player code lacks the called entry point.
type MissingFunction struct {
	Tag string `json:"__custom_type"`
	Str string `json:"str"`
}

func NewMissingFunction(str string) MissingFunction {
	return MissingFunction{Tag: TagMissingFunction, Str: str}
}

// Failsafe is the harness's last-resort self report. A connection that
// receives one shuts down and stops trusting the peer.
type Failsafe struct {
	Tag string `json:"__custom_type"`
	Str string `json:"str"`
}

func NewFailsafe(str string) Failsafe {
	return Failsafe{Tag: TagFailsafe, Str: str}
}

// ExceptionTrace carries a formatted stack trace raised inside player code.
type ExceptionTrace struct {
	Tag string `json:"__custom_type"`
	Msg string `json:"msg"`
}

func NewExceptionTrace(msg string) ExceptionTrace {
	return ExceptionTrace{Tag: TagExceptionTrace, Msg: msg}
}

// ChessBoard is a chess position in transit.
type ChessBoard struct {
	Tag      string `json:"__custom_type"`
	FEN      string `json:"fen"`
	Chess960 bool   `json:"chess960"`
}

func NewChessBoard(fen string, chess960 bool) ChessBoard {
	return ChessBoard{Tag: TagChessBoard, FEN: fen, Chess960: chess960}
}

// ChessMove is a move in UCI notation in transit.
type ChessMove struct {
	Tag string `json:"__custom_type"`
	UCI string `json:"uci"`
}

func NewChessMove(uci string) ChessMove {
	return ChessMove{Tag: TagChessMove, UCI: uci}
}

// Call asks the peer harness to invoke a named entry point with keyword
// arguments.
type Call struct {
	Type         string         `json:"type"`
	MethodName   string         `json:"method_name"`
	MethodArgs   []any          `json:"method_args"`
	MethodKwargs map[string]any `json:"method_kwargs"`
}

func NewCall(method string, kwargs map[string]any) Call {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Call{Type: "call", MethodName: method, MethodArgs: []any{}, MethodKwargs: kwargs}
}

// Ping asks the peer for an immediate Pong reply.
type Ping struct {
	Type string `json:"type"`
}

func NewPing() Ping {
	return Ping{Type: "ping"}
}

// Pong is the payload answering a ping.
const Pong = "pong"

// DecodeData resolves a RESULT payload into a typed value when it carries
// a known tag. Untagged or unrecognised payloads come back unchanged.
func DecodeData(data json.RawMessage) any {
	var probe struct {
		Tag string `json:"__custom_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Tag == "" {
		return data
	}
	switch probe.Tag {
	case TagMissingFunction:
		var v MissingFunction
		if json.Unmarshal(data, &v) == nil {
			return &v
		}
	case TagFailsafe:
		var v Failsafe
		if json.Unmarshal(data, &v) == nil {
			return &v
		}
	case TagExceptionTrace:
		var v ExceptionTrace
		if json.Unmarshal(data, &v) == nil {
			return &v
		}
	case TagChessBoard:
		var v ChessBoard
		if json.Unmarshal(data, &v) == nil {
			return &v
		}
	case TagChessMove:
		var v ChessMove
		if json.Unmarshal(data, &v) == nil {
			return &v
		}
	}
	return data
}
