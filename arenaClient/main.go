package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/websocket"
)

// serverFrame is every frame the arena sends over /ws/run; the type field
// says which of the other fields are live.
type serverFrame struct {
	Type         string          `json:"type"`
	MethodName   string          `json:"method_name"`
	MethodKwargs map[string]any  `json:"method_kwargs"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
}

type reply struct {
	Value any `json:"value"`
}

func main() {
	server := flag.String("server", "ws://localhost:3001", "arena server base URL")
	gamemode := flag.String("gamemode", "chess", "gamemode to play")
	submissions := flag.String("submissions", "", "comma-separated opponent submission hashes")
	flag.Parse()

	url := fmt.Sprintf("%s/ws/run?gamemode=%s", *server, *gamemode)
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		fmt.Println("Error connecting to server:", err)
		os.Exit(1)
	}
	defer ws.Close()

	var opponents []string
	for _, h := range strings.Split(*submissions, ",") {
		if h = strings.TrimSpace(h); h != "" {
			opponents = append(opponents, h)
		}
	}
	if err := websocket.JSON.Send(ws, map[string][]string{"submissions": opponents}); err != nil {
		fmt.Println("Error sending opening frame:", err)
		os.Exit(1)
	}
	fmt.Printf("Playing %s against %v\n", *gamemode, opponents)

	stdin := bufio.NewScanner(os.Stdin)
	for {
		var frame serverFrame
		if err := websocket.JSON.Receive(ws, &frame); err != nil {
			fmt.Println("Connection closed:", err)
			os.Exit(1)
		}

		switch frame.Type {
		case "ping":
			send(ws, reply{Value: "pong"})
		case "call":
			printBoard(frame.MethodKwargs)
			fmt.Print("your move> ")
			if !stdin.Scan() {
				fmt.Println("\nstdin closed, giving up the game")
				os.Exit(1)
			}
			send(ws, reply{Value: strings.TrimSpace(stdin.Text())})
		case "result":
			printResult(frame.Result)
			return
		case "error":
			fmt.Println("Server error:", frame.Error)
			os.Exit(1)
		}
	}
}

func send(ws *websocket.Conn, v any) {
	if err := websocket.JSON.Send(ws, v); err != nil {
		fmt.Println("Error sending to server:", err)
		os.Exit(1)
	}
}

// printBoard shows whatever the gamemode sent: a chess position is drawn as
// a grid, anything else is dumped as indented JSON.
func printBoard(kwargs map[string]any) {
	if board, ok := kwargs["board"].(map[string]any); ok {
		if fen, ok := board["fen"].(string); ok {
			fmt.Println(renderFEN(fen))
		} else {
			blob, _ := json.MarshalIndent(board, "", "  ")
			fmt.Println(string(blob))
		}
	}
	if secs, ok := kwargs["time_remaining"].(float64); ok {
		fmt.Printf("time remaining: %.1fs\n", secs)
	}
}

// renderFEN draws the piece placement field of a FEN string with rank and
// file markers.
func renderFEN(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return fen
	}
	var b strings.Builder
	rank := 8
	for _, row := range strings.Split(fields[0], "/") {
		fmt.Fprintf(&b, "%d ", rank)
		for _, r := range row {
			if r >= '1' && r <= '8' {
				b.WriteString(strings.Repeat(". ", int(r-'0')))
			} else {
				b.WriteRune(r)
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
		rank--
	}
	b.WriteString("  a b c d e f g h")
	return b.String()
}

// printResult decodes the final match record into one line per player.
func printResult(raw json.RawMessage) {
	var res struct {
		Moves   []string `json:"moves"`
		Results []struct {
			PlayerID   string `json:"player_id"`
			Outcome    int    `json:"outcome"`
			ResultCode string `json:"result_code"`
			Printed    string `json:"printed"`
		} `json:"submission_results"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		fmt.Println(string(raw))
		return
	}

	code := "unknown"
	if len(res.Results) > 0 {
		code = res.Results[0].ResultCode
	}
	fmt.Printf("\nGame over after %d moves (%s)\n", len(res.Moves), code)
	for _, r := range res.Results {
		outcome := "draw"
		switch r.Outcome {
		case 0:
			outcome = "loss"
		case 2:
			outcome = "win"
		}
		fmt.Printf("  %s: %s\n", r.PlayerID, outcome)
		if r.Printed != "" {
			fmt.Printf("    output: %s\n", r.Printed)
		}
	}
}
