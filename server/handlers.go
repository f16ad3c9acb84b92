// File: server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/match"
	"github.com/lguibr/arena/sandbox"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleRun plays one match synchronously and responds with its full result.
// The connection stays open for the duration of the match.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	gamemodeID, hashes, overrides := runParams(r.URL.Query())

	result, err := s.runner.Run(r.Context(), gamemodeID, hashes, overrides)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runParams reads the shared query contract of /run and /ws/run: a gamemode
// id defaulting to chess, a comma-separated submission list, and every other
// parameter passed through as a gamemode option override.
func runParams(q url.Values) (gamemodeID string, hashes []string, overrides game.Options) {
	gamemodeID = q.Get("gamemode")
	if gamemodeID == "" {
		gamemodeID = defaultGamemodeID
	}
	hashes = splitSubmissions(q.Get("submissions"))

	overrides = game.Options{}
	for key, values := range q {
		if key == "gamemode" || key == "submissions" || len(values) == 0 {
			continue
		}
		overrides[key] = values[0]
	}
	return gamemodeID, hashes, overrides
}

// splitSubmissions parses the comma-separated submission list.
func splitSubmissions(csv string) []string {
	return normalizeHashes(strings.Split(csv, ","))
}

// normalizeHashes lowercases and trims submission names so hex hashes match
// their archives regardless of caller casing. Empty entries are dropped.
func normalizeHashes(parts []string) []string {
	var hashes []string
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			hashes = append(hashes, part)
		}
	}
	return hashes
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrUnknownGamemode):
		status = http.StatusNotFound
	case errors.Is(err, match.ErrPlayerCountMismatch),
		errors.Is(err, sandbox.ErrInvalidSubmission):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Errorw("match request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
