// File: utils/config_test.go
package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	if cfg.SubmissionRunner != want.SubmissionRunner {
		t.Errorf("runner config = %+v, want defaults", cfg.SubmissionRunner)
	}
	if cfg.InitialScore != 1200.0 || cfg.ScoreTurbulence != 32.0 {
		t.Errorf("rating defaults = %v / %v", cfg.InitialScore, cfg.ScoreTurbulence)
	}
	if cfg.Gamemode.ID != "chess" {
		t.Errorf("gamemode = %q, want chess", cfg.Gamemode.ID)
	}
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	body := `
debug: true
profile: true
submission_runner:
  sandbox_memory_limit: "512M"
  sandbox_cpu_count: 2.5
  matchmakers: 4
  image: "arena/sandbox:v2"
gamemode:
  id: "inarow"
  options:
    turn_time: 3
    board_size: 9
score_turbulence: 24.0
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || !cfg.Profile {
		t.Error("debug/profile flags not read")
	}
	if cfg.SubmissionRunner.SandboxMemoryLimit != "512M" {
		t.Errorf("memory limit = %q", cfg.SubmissionRunner.SandboxMemoryLimit)
	}
	if cfg.SubmissionRunner.SandboxCPUCount != 2.5 {
		t.Errorf("cpu count = %v", cfg.SubmissionRunner.SandboxCPUCount)
	}
	if cfg.SubmissionRunner.Matchmakers != 4 {
		t.Errorf("matchmakers = %d", cfg.SubmissionRunner.Matchmakers)
	}
	// keys absent from the file keep their defaults
	if cfg.SubmissionRunner.TargetSecondsPerGame != 60 {
		t.Errorf("target seconds = %d, want default 60", cfg.SubmissionRunner.TargetSecondsPerGame)
	}
	if cfg.Gamemode.ID != "inarow" {
		t.Errorf("gamemode = %q", cfg.Gamemode.ID)
	}
	if cfg.Gamemode.Options["board_size"] != 9 {
		t.Errorf("board_size option = %v", cfg.Gamemode.Options["board_size"])
	}
	if cfg.ScoreTurbulence != 24.0 {
		t.Errorf("turbulence = %v", cfg.ScoreTurbulence)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("ARENA_CONFIG", "/etc/arena/prod.yml")
	if got := ConfigPath(); got != "/etc/arena/prod.yml" {
		t.Errorf("path = %q", got)
	}
	t.Setenv("ARENA_CONFIG", "")
	if got := ConfigPath(); got != "config.yml" {
		t.Errorf("default path = %q", got)
	}
}

func TestParseByteSize(t *testing.T) {
	testCases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"256M", 256 << 20, false},
		{"256m", 256 << 20, false},
		{"256MB", 256 << 20, false},
		{"1G", 1 << 30, false},
		{"64K", 64 << 10, false},
		{"1048576", 1 << 20, false},
		{" 2g ", 2 << 30, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-5M", 0, true},
		{"M", 0, true},
	}
	for _, tc := range testCases {
		got, err := ParseByteSize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseByteSize(%q) = %d, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
