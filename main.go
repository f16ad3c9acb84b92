// File: main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lguibr/arena/game"
	"github.com/lguibr/arena/match"
	"github.com/lguibr/arena/matchmaker"
	"github.com/lguibr/arena/sandbox"
	"github.com/lguibr/arena/server"
	"github.com/lguibr/arena/store"
	"github.com/lguibr/arena/utils"
)

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	flag.Parse()

	// .env is a developer convenience; absence is normal in production.
	_ = godotenv.Load()

	cfg, err := utils.LoadConfig(utils.ConfigPath())
	if err != nil {
		panic(err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	memBytes, err := utils.ParseByteSize(cfg.SubmissionRunner.SandboxMemoryLimit)
	if err != nil {
		logger.Fatalw("invalid sandbox memory limit", "error", err)
	}

	db, err := store.Open(os.Getenv("DATABASE_URL"), logger)
	if err != nil {
		logger.Fatalw("database unavailable", "error", err)
	}
	if err := db.Migrate(); err != nil {
		logger.Fatalw("database migration failed", "error", err)
	}

	engine, err := sandbox.NewDockerEngine()
	if err != nil {
		logger.Fatalw("container engine unavailable", "error", err)
	}
	runner := sandbox.NewRunner(engine, sandbox.Config{
		Image:           cfg.SubmissionRunner.Image,
		RepoPath:        cfg.SubmissionRunner.RepoPath,
		HarnessPath:     cfg.SubmissionRunner.HarnessPath,
		EntryPoint:      cfg.SubmissionRunner.EntryPoint,
		MemoryBytes:     memBytes,
		CPUCount:        cfg.SubmissionRunner.SandboxCPUCount,
		UnrunTimeout:    time.Duration(cfg.SubmissionRunner.SandboxUnrunTimeoutSeconds) * time.Second,
		RunTimeout:      time.Duration(cfg.SubmissionRunner.SandboxRunTimeoutSeconds) * time.Second,
		MaxArchiveBytes: cfg.MaxRepoSizeBytes,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Matches cannot run without the sandbox image; refuse to boot blind.
	if err := runner.VerifyImage(ctx); err != nil {
		logger.Fatalw("sandbox image missing", "image", cfg.SubmissionRunner.Image, "error", err)
	}

	registry := game.NewRegistry(game.NewChess(), game.NewInARow(2))
	svc := match.NewService(registry, match.SandboxProvisioner{Runner: runner}, logger)

	mode, err := registry.Get(cfg.Gamemode.ID)
	if err != nil {
		logger.Fatalw("configured gamemode unknown", "gamemode", cfg.Gamemode.ID, "known", registry.Names())
	}
	workers := matchmaker.StartPool(ctx, cfg.SubmissionRunner.Matchmakers, matchmaker.Config{
		GamemodeID:    cfg.Gamemode.ID,
		Options:       game.Options(cfg.Gamemode.Options),
		PlayerCount:   game.PlayerCount(mode),
		TargetSeconds: cfg.SubmissionRunner.TargetSecondsPerGame,
		InitialScore:  cfg.InitialScore,
		Turbulence:    cfg.ScoreTurbulence,
	}, db, svc, logger)

	if err := server.New(svc, cfg.Profile, logger).Run(ctx, *addr); err != nil {
		logger.Errorw("http server stopped", "error", err)
	}
	stop()
	workers.Wait()
	logger.Infow("shutdown complete")
}
