// File: match/runner.go
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lguibr/arena/comms"
	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/sandbox"
)

// ErrPlayerCountMismatch reports a submission list that cannot fill the
// gamemode's seats.
var ErrPlayerCountMismatch = errors.New("submission count does not match gamemode seats")

// Box is one provisioned sandbox as the match layer sees it.
type Box interface {
	Stream() io.ReadWriteCloser
	Hash() string
	Kill() error
}

// Provisioner starts sandboxes for submissions.
type Provisioner interface {
	Start(ctx context.Context, hash string) (Box, error)
}

// SandboxProvisioner adapts the sandbox runner to the Provisioner interface.
type SandboxProvisioner struct {
	Runner *sandbox.Runner
}

func (p SandboxProvisioner) Start(ctx context.Context, hash string) (Box, error) {
	inst, err := p.Runner.Start(ctx, hash)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Service runs complete matches: parallel sandbox provisioning, timed
// connections, the turn loop, teardown.
type Service struct {
	registry *game.Registry
	prov     Provisioner
	turnCap  int
	log      *zap.SugaredLogger
}

func NewService(registry *game.Registry, prov Provisioner, log *zap.SugaredLogger) *Service {
	return &Service{registry: registry, prov: prov, turnCap: DefaultTurnCap, log: log}
}

// Run plays one match between the given submissions.
func (s *Service) Run(ctx context.Context, gamemodeID string, hashes []string, overrides game.Options) (game.ParsedResult, error) {
	return s.run(ctx, gamemodeID, hashes, overrides, nil)
}

// RunWithHuman seats an already-connected player in the first slot and fills
// the remaining seats with sandboxes.
func (s *Service) RunWithHuman(ctx context.Context, gamemodeID string, human comms.Connection, hashes []string, overrides game.Options) (game.ParsedResult, error) {
	return s.run(ctx, gamemodeID, hashes, overrides, human)
}

func (s *Service) run(ctx context.Context, gamemodeID string, hashes []string, overrides game.Options, human comms.Connection) (game.ParsedResult, error) {
	mode, err := s.registry.Get(gamemodeID)
	if err != nil {
		return game.ParsedResult{}, err
	}
	n := game.PlayerCount(mode)
	seats := n
	if human != nil {
		seats--
	}
	if len(hashes) != seats {
		return game.ParsedResult{}, fmt.Errorf("%w: gamemode %s needs %d, got %d",
			ErrPlayerCountMismatch, gamemodeID, seats, len(hashes))
	}

	opts := mode.DefaultOptions().Merge(overrides)

	// A "moves" option caps the turn count for this run only.
	turnCap := s.turnCap
	if v := opts.Int("moves", 0); v > 0 {
		turnCap = v
	}

	// The shared protocol budget per connection: generous enough for every
	// player's full clock plus one turn of slack.
	budget := time.Duration(n+1) * time.Duration(opts.TurnTime()) * time.Second

	boxes := make([]Box, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			box, err := s.prov.Start(gctx, hash)
			if err != nil {
				return fmt.Errorf("provisioning submission %s: %w", hash, err)
			}
			boxes[i] = box
			return nil
		})
	}
	err = g.Wait()
	defer func() {
		for _, box := range boxes {
			if box != nil {
				box.Kill()
			}
		}
	}()
	if err != nil {
		return game.ParsedResult{}, err
	}

	conns := make([]comms.Connection, 0, n)
	if human != nil {
		conns = append(conns, comms.NewTimedConnection(human, budget))
	}
	for _, box := range boxes {
		mc := comms.NewMessageConnection(box.Stream(), s.log)
		conns = append(conns, comms.NewTimedConnection(mc, budget))
	}

	eng, err := NewEngine(mode, comms.NewMiddleware(conns), opts, turnCap, s.log)
	if err != nil {
		return game.ParsedResult{}, err
	}

	s.log.Debugw("match starting", "gamemode", gamemodeID, "submissions", hashes)
	result := eng.Run(ctx)
	return result, nil
}
