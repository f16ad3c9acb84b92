// File: server/handlers_test.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/match"
	"github.com/lguibr/arena/sandbox"
)

// fakeRunner records the last request and plays back a scripted answer. The
// withHuman hook lets websocket tests drive the bridged connection.
type fakeRunner struct {
	mu        sync.Mutex
	gamemode  string
	hashes    []string
	overrides game.Options

	result    game.ParsedResult
	err       error
	withHuman func(ctx context.Context, human comms.Connection) (game.ParsedResult, error)
}

func (f *fakeRunner) record(gamemodeID string, hashes []string, overrides game.Options) {
	f.mu.Lock()
	f.gamemode, f.hashes, f.overrides = gamemodeID, hashes, overrides
	f.mu.Unlock()
}

func (f *fakeRunner) got() (string, []string, game.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gamemode, f.hashes, f.overrides
}

func (f *fakeRunner) Run(_ context.Context, gamemodeID string, hashes []string, overrides game.Options) (game.ParsedResult, error) {
	f.record(gamemodeID, hashes, overrides)
	return f.result, f.err
}

func (f *fakeRunner) RunWithHuman(ctx context.Context, gamemodeID string, human comms.Connection, hashes []string, overrides game.Options) (game.ParsedResult, error) {
	f.record(gamemodeID, hashes, overrides)
	if f.withHuman != nil {
		return f.withHuman(ctx, human)
	}
	return f.result, f.err
}

func newTestServer(runner Runner) *Server {
	return New(runner, false, zap.NewNop().Sugar())
}

func TestRunHandlerPlaysMatch(t *testing.T) {
	want := game.ParsedResult{
		InitialBoard: "start",
		Moves:        []string{"f2f3", "e7e5"},
		Results: []game.SingleResult{
			{Outcome: game.Loss, Healthy: true, PlayerID: "white", ResultCode: game.ResultValidGame},
			{Outcome: game.Win, Healthy: true, PlayerID: "black", ResultCode: game.ResultValidGame},
		},
	}
	runner := &fakeRunner{result: want}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/run?gamemode=chess&submissions=AA00,%20bb11&moves=5", nil)
	newTestServer(runner).Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	gamemode, hashes, overrides := runner.got()
	require.Equal(t, "chess", gamemode)
	require.Equal(t, []string{"aa00", "bb11"}, hashes, "hashes are lowercased and trimmed")
	require.Equal(t, game.Options{"moves": "5"}, overrides, "extra params pass through as options")

	var got game.ParsedResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, want, got)
}

func TestRunHandlerDefaultsToChess(t *testing.T) {
	runner := &fakeRunner{}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/run?submissions=aa00,bb11", nil)
	newTestServer(runner).Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	gamemode, _, overrides := runner.got()
	require.Equal(t, "chess", gamemode)
	require.Equal(t, game.Options{}, overrides)
}

func TestRunHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown gamemode", game.ErrUnknownGamemode, http.StatusNotFound},
		{"seat mismatch", fmt.Errorf("%w: gamemode chess needs 2, got 1", match.ErrPlayerCountMismatch), http.StatusUnprocessableEntity},
		{"missing archive", fmt.Errorf("%w: no archive for zz", sandbox.ErrInvalidSubmission), http.StatusUnprocessableEntity},
		{"infrastructure failure", errors.New("docker daemon unreachable"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/run?submissions=aa00,bb11", nil)
			newTestServer(&fakeRunner{err: tc.err}).Routes().ServeHTTP(rec, req)

			require.Equal(t, tc.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestRunHandlerRejectsOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run?submissions=aa00,bb11", nil)
	newTestServer(&fakeRunner{}).Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(&fakeRunner{}).Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestSplitSubmissions(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want []string
	}{
		{"plain", "aa00,bb11", []string{"aa00", "bb11"}},
		{"uppercase and spaces", " AA00 , Bb11 ", []string{"aa00", "bb11"}},
		{"empty entries dropped", ",aa00,,", []string{"aa00"}},
		{"empty list", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitSubmissions(tc.csv))
		})
	}
}
