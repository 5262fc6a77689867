package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drover/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Queue.Mode != config.ModeQueue {
		t.Fatalf("default mode = %q, want %q", cfg.Queue.Mode, config.ModeQueue)
	}
	if cfg.Debug.Port != 9222 {
		t.Fatalf("default debug port = %d, want 9222", cfg.Debug.Port)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[debug]
port = 9333

[queue]
mode = "Queue"
completion_policy = "LOOP"
silence_timeout = 45
min_dwell = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Debug.Port != 9333 {
		t.Fatalf("debug port = %d, want 9333", cfg.Debug.Port)
	}
	if cfg.Queue.Mode != config.ModeQueue {
		t.Fatalf("mode not lowercased: %q", cfg.Queue.Mode)
	}
	if cfg.Queue.CompletionPolicy != config.PolicyLoop {
		t.Fatalf("policy not lowercased: %q", cfg.Queue.CompletionPolicy)
	}
	if got := cfg.SilenceTimeout().Seconds(); got != 45 {
		t.Fatalf("silence timeout = %vs, want 45s", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad mode",
			mutate:  func(c *config.Config) { c.Queue.Mode = "hourly" },
			wantSub: "queue.mode",
		},
		{
			name:    "bad policy",
			mutate:  func(c *config.Config) { c.Queue.CompletionPolicy = "drain" },
			wantSub: "queue.completion_policy",
		},
		{
			name:    "silence below dwell",
			mutate:  func(c *config.Config) { c.Queue.SilenceTimeout = c.Queue.MinDwell },
			wantSub: "silence_timeout",
		},
		{
			name:    "zero port",
			mutate:  func(c *config.Config) { c.Debug.Port = 0 },
			wantSub: "debug.port",
		},
		{
			name: "verify without prompt",
			mutate: func(c *config.Config) {
				c.Queue.VerifyEnabled = true
				c.Queue.VerifyPrompt = "  "
			},
			wantSub: "verify_prompt",
		},
		{
			name: "daily mode bad time",
			mutate: func(c *config.Config) {
				c.Queue.Mode = config.ModeDaily
				c.Schedule.DailyTime = "9am"
				c.Schedule.Prompt = "hello"
			},
			wantSub: "daily_time",
		},
		{
			name:    "stale multiplier too small",
			mutate:  func(c *config.Config) { c.Coordination.StaleMultiplier = 1 },
			wantSub: "stale_multiplier",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	if _, _, exists, err := config.Load(path); err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	} else if !exists {
		t.Fatal("sample config not detected")
	}
}

func TestDiscoveryURL(t *testing.T) {
	cfg := config.Default()
	cfg.Debug.Host = "127.0.0.1"
	cfg.Debug.Port = 9222
	want := "http://127.0.0.1:9222/json/list"
	if got := cfg.DiscoveryURL(); got != want {
		t.Fatalf("DiscoveryURL = %q, want %q", got, want)
	}
}
