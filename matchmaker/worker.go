// File: matchmaker/worker.go
package matchmaker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/rating"
	"github.com/lguibr/arena/store"
)

// Database is the slice of the store a worker needs.
type Database interface {
	Candidates(ctx context.Context) ([]store.Candidate, error)
	Untested(ctx context.Context) ([]store.Submission, error)
	Ratings(ctx context.Context, userIDs []string, initial float64) (map[string]float64, error)
	RecordMatch(ctx context.Context, recording store.MatchRecording, results []store.PlayerResult) (uint, error)
}

// MatchRunner plays one match between submissions.
type MatchRunner interface {
	Run(ctx context.Context, gamemodeID string, hashes []string, overrides game.Options) (game.ParsedResult, error)
}

// Config tunes one matchmaking worker.
type Config struct {
	GamemodeID    string
	Options       game.Options
	PlayerCount   int
	TargetSeconds int
	InitialScore  float64
	Turbulence    float64

	// Untested switches the worker to self-play probing of submissions with
	// no results yet. Rating updates are suppressed on this path.
	Untested bool
}

// Worker repeatedly selects submissions, runs a match and records the
// outcome. Workers coordinate only through the database.
type Worker struct {
	db     Database
	runner MatchRunner
	cfg    Config
	log    *zap.SugaredLogger
	rng    *rand.Rand
}

func NewWorker(db Database, runner MatchRunner, cfg Config, log *zap.SugaredLogger) *Worker {
	return newWorker(db, runner, cfg, log, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newWorker(db Database, runner MatchRunner, cfg Config, log *zap.SugaredLogger, rng *rand.Rand) *Worker {
	return &Worker{db: db, runner: runner, cfg: cfg, log: log, rng: rng}
}

// Run ticks until the context ends, pacing itself to the configured cadence.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		start := time.Now()
		matched, err := w.safeTick(ctx)
		elapsed := time.Since(start)
		if err != nil {
			w.log.Errorw("matchmaker tick failed", "gamemode", w.cfg.GamemodeID, "error", err)
		} else if !matched {
			w.log.Debugw("matchmaker tick idle", "gamemode", w.cfg.GamemodeID)
		}
		if !sleepCtx(ctx, w.pause(elapsed, err != nil)) {
			return
		}
	}
}

// safeTick converts a panicking tick into a failed one, so a bug in one
// match cannot take the worker fleet down.
func (w *Worker) safeTick(ctx context.Context) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return w.tick(ctx)
}

// tick plays at most one match. It reports false when no eligible players
// were found, which is not an error.
func (w *Worker) tick(ctx context.Context) (bool, error) {
	if w.cfg.Untested {
		return w.tickUntested(ctx)
	}

	candidates, err := w.db.Candidates(ctx)
	if err != nil {
		return false, err
	}
	picked, ok := samplePlayers(w.rng, candidates, w.cfg.PlayerCount)
	if !ok {
		return false, nil
	}

	hashes := make([]string, len(picked))
	subs := make([]store.Submission, len(picked))
	for i, c := range picked {
		hashes[i] = c.Submission.SubmissionHash
		subs[i] = c.Submission
	}

	res, err := w.runner.Run(ctx, w.cfg.GamemodeID, hashes, w.cfg.Options)
	if err != nil {
		return false, err
	}
	return true, w.persist(ctx, subs, res, true)
}

// tickUntested gives a submission with no history its first results by
// playing it against itself in every seat.
func (w *Worker) tickUntested(ctx context.Context) (bool, error) {
	subs, err := w.db.Untested(ctx)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, nil
	}
	sub := subs[w.rng.Intn(len(subs))]

	hashes := make([]string, w.cfg.PlayerCount)
	slots := make([]store.Submission, w.cfg.PlayerCount)
	for i := range hashes {
		hashes[i] = sub.SubmissionHash
		slots[i] = sub
	}

	res, err := w.runner.Run(ctx, w.cfg.GamemodeID, hashes, w.cfg.Options)
	if err != nil {
		return false, err
	}
	return true, w.persist(ctx, slots, res, false)
}

// persist writes the match and its result rows. Rating deltas are computed
// only when updateScores is set and at least one player finished healthy; a
// rating-engine fault zeroes the swing but still records the match.
func (w *Worker) persist(ctx context.Context, subs []store.Submission, res game.ParsedResult, updateScores bool) error {
	if len(res.Results) != len(subs) {
		return fmt.Errorf("engine returned %d results for %d players", len(res.Results), len(subs))
	}
	deltas := make([]float64, len(subs))

	anyHealthy := false
	for _, r := range res.Results {
		if r.Healthy {
			anyHealthy = true
			break
		}
	}

	if updateScores && anyHealthy {
		users := make([]string, len(subs))
		outcomes := make([]game.Outcome, len(subs))
		for i := range subs {
			users[i] = subs[i].UserID
			outcomes[i] = res.Results[i].Outcome
		}
		scores, err := w.db.Ratings(ctx, users, w.cfg.InitialScore)
		if err != nil {
			return err
		}
		ratings := make([]float64, len(subs))
		for i, u := range users {
			ratings[i] = scores[u]
		}
		if d, err := rating.Deltas(outcomes, ratings, w.cfg.Turbulence); err != nil {
			w.log.Errorw("rating update aborted", "gamemode", w.cfg.GamemodeID, "error", err)
		} else {
			deltas = d
		}
	}

	rows := make([]store.PlayerResult, len(subs))
	for i := range subs {
		rows[i] = store.PlayerResult{
			SubmissionID: subs[i].ID,
			PlayerID:     res.Results[i].PlayerID,
			Outcome:      int(res.Results[i].Outcome),
			Healthy:      res.Results[i].Healthy,
			PointsDelta:  deltas[i],
		}
	}
	recording := store.MatchRecording{InitialBoard: res.InitialBoard, Moves: res.Moves}
	matchID, err := w.db.RecordMatch(ctx, recording, rows)
	if err != nil {
		return err
	}
	w.log.Infow("match recorded",
		"match", matchID,
		"gamemode", w.cfg.GamemodeID,
		"code", res.Results[0].ResultCode,
		"moves", len(res.Moves))
	return nil
}

// pause computes the post-tick sleep: aim for the target cadence with a
// ±5% jitter, plus a whole-second backoff after a failed tick.
func (w *Worker) pause(elapsed time.Duration, failed bool) time.Duration {
	target := time.Duration(w.cfg.TargetSeconds) * time.Second
	jitter := time.Duration((w.rng.Float64()*0.1 - 0.05) * float64(target))
	sleep := target - elapsed + jitter
	if sleep < 0 {
		sleep = 0
	}
	if failed {
		ceil := 2 * max(1, w.cfg.TargetSeconds)
		sleep += time.Duration(1+w.rng.Intn(ceil)) * time.Second
	}
	return sleep
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// samplePlayers draws n distinct candidates without replacement, each pick
// weighted by health over the remaining pool. Zero-health candidates never
// play.
func samplePlayers(rng *rand.Rand, pool []store.Candidate, n int) ([]store.Candidate, bool) {
	eligible := make([]store.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.Health > 0 {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) < n {
		return nil, false
	}

	picked := make([]store.Candidate, 0, n)
	for len(picked) < n {
		var total float64
		for _, c := range eligible {
			total += c.Health
		}
		x := rng.Float64() * total
		idx := len(eligible) - 1
		for i, c := range eligible {
			x -= c.Health
			if x < 0 {
				idx = i
				break
			}
		}
		picked = append(picked, eligible[idx])
		eligible = append(eligible[:idx], eligible[idx+1:]...)
	}
	return picked, true
}

// StartPool launches n cadenced workers plus one dedicated untested worker,
// all stopping when ctx ends. Wait on the returned group for shutdown.
func StartPool(ctx context.Context, n int, base Config, db Database, runner MatchRunner, log *zap.SugaredLogger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := NewWorker(db, runner, base, log.With("worker", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	untested := base
	untested.Untested = true
	w := NewWorker(db, runner, untested, log.With("worker", "untested"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()
	return &wg
}
