// File: utils/config.go
package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the platform recognises. The zero-ish defaults
// from DefaultConfig are overlaid with the YAML file named by ARENA_CONFIG.
type Config struct {
	Debug   bool `yaml:"debug"`
	Profile bool `yaml:"profile"`

	SubmissionRunner SubmissionRunnerConfig `yaml:"submission_runner"`
	Gamemode         GamemodeConfig         `yaml:"gamemode"`

	// MaxRepoSizeBytes caps how large a submission archive may be.
	MaxRepoSizeBytes int64 `yaml:"max_repo_size_bytes"`

	// InitialScore is every user's rating before their first scored match;
	// ScoreTurbulence is the Elo k-factor.
	InitialScore    float64 `yaml:"initial_score"`
	ScoreTurbulence float64 `yaml:"score_turbulence"`
}

// SubmissionRunnerConfig tunes the sandbox fleet and the matchmakers.
type SubmissionRunnerConfig struct {
	SandboxMemoryLimit         string  `yaml:"sandbox_memory_limit"`
	SandboxCPUCount            float64 `yaml:"sandbox_cpu_count"`
	SandboxUnrunTimeoutSeconds int     `yaml:"sandbox_unrun_timeout_seconds"`
	SandboxRunTimeoutSeconds   int     `yaml:"sandbox_run_timeout_seconds"`
	Matchmakers                int     `yaml:"matchmakers"`
	TargetSecondsPerGame       int     `yaml:"target_seconds_per_game"`
	Image                      string  `yaml:"image"`
	RepoPath                   string  `yaml:"repo_path"`
	HarnessPath                string  `yaml:"harness_path"`
	EntryPoint                 string  `yaml:"entry_point"`
}

// GamemodeConfig names the gamemode the matchmakers run and its option
// overrides.
type GamemodeConfig struct {
	ID      string         `yaml:"id"`
	Options map[string]any `yaml:"options"`
}

// DefaultConfig returns the settings the platform runs with when no config
// file is present.
func DefaultConfig() Config {
	return Config{
		SubmissionRunner: SubmissionRunnerConfig{
			SandboxMemoryLimit:         "256M",
			SandboxCPUCount:            1.0,
			SandboxUnrunTimeoutSeconds: 10,
			SandboxRunTimeoutSeconds:   300,
			Matchmakers:                2,
			TargetSecondsPerGame:       60,
			Image:                      "arena/sandbox",
			RepoPath:                   "/repositories",
			HarnessPath:                "./harness",
			EntryPoint:                 "sandbox.play",
		},
		Gamemode: GamemodeConfig{
			ID:      "chess",
			Options: map[string]any{"turn_time": 10},
		},
		MaxRepoSizeBytes: 1 << 20,
		InitialScore:     1200.0,
		ScoreTurbulence:  32.0,
	}
}

// ConfigPath resolves the config file location: ARENA_CONFIG when set,
// ./config.yml otherwise.
func ConfigPath() string {
	if p := os.Getenv("ARENA_CONFIG"); p != "" {
		return p
	}
	return "config.yml"
}

// LoadConfig overlays the YAML file at path on the defaults. A missing file
// is not an error; the defaults stand on their own.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseByteSize reads docker-style size strings: a number with an optional
// K, M or G suffix (optionally followed by B), case-insensitive.
func ParseByteSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(s))
	if trimmed == "" {
		return 0, fmt.Errorf("empty size")
	}
	trimmed = strings.TrimSuffix(trimmed, "B")

	mult := int64(1)
	switch {
	case strings.HasSuffix(trimmed, "K"):
		mult = 1 << 10
		trimmed = strings.TrimSuffix(trimmed, "K")
	case strings.HasSuffix(trimmed, "M"):
		mult = 1 << 20
		trimmed = strings.TrimSuffix(trimmed, "M")
	case strings.HasSuffix(trimmed, "G"):
		mult = 1 << 30
		trimmed = strings.TrimSuffix(trimmed, "G")
	}

	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
