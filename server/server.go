// File: server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	// pprof handlers are mounted behind the profile flag
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/game"
)

// defaultGamemodeID is assumed when a request names no gamemode.
const defaultGamemodeID = "chess"

// Runner plays matches on demand. match.Service is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, gamemodeID string, hashes []string, overrides game.Options) (game.ParsedResult, error)
	RunWithHuman(ctx context.Context, gamemodeID string, human comms.Connection, hashes []string, overrides game.Options) (game.ParsedResult, error)
}

// Server exposes on-demand matches over HTTP and WebSocket.
type Server struct {
	runner  Runner
	profile bool
	log     *zap.SugaredLogger
}

func New(runner Runner, profile bool, log *zap.SugaredLogger) *Server {
	return &Server{runner: runner, profile: profile, log: log}
}

// Routes builds the handler tree: the match endpoints, liveness, and the
// pprof pages when profiling is on.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/run", s.handleRun).Methods(http.MethodGet)
	r.Handle("/ws/run", websocket.Handler(s.handleWS))
	if s.profile {
		r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	}
	return cors.Default().Handler(r)
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// with a deadline. Matches hold their response open for minutes, so only the
// header read is time-bounded here.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Infow("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
