package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Debug contains settings for the debug-protocol control plane.
type Debug struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// SettingsTitle identifies the internal settings surface excluded from
	// automation during target discovery.
	SettingsTitle  string `toml:"settings_title"`
	PayloadPath    string `toml:"payload_path"`
	EvalTimeout    int    `toml:"eval_timeout"`
	InjectTimeout  int    `toml:"inject_timeout"`
	RefreshEvery   int    `toml:"refresh_interval"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Queue contains the prompt queue execution settings.
type Queue struct {
	Mode             string `toml:"mode"`
	CompletionPolicy string `toml:"completion_policy"`
	SilenceTimeout   int    `toml:"silence_timeout"`
	MinDwell         int    `toml:"min_dwell"`
	StartGrace       int    `toml:"start_grace"`
	VerifyEnabled    bool   `toml:"verify_enabled"`
	VerifyPrompt     string `toml:"verify_prompt"`
	QuotaResume      bool   `toml:"quota_resume"`
	AutoContinue     bool   `toml:"auto_continue"`
	ContinuePrompt   string `toml:"continue_prompt"`
}

// Schedule configures the non-queue execution modes.
type Schedule struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	DailyTime       string `toml:"daily_time"`
	Prompt          string `toml:"prompt"`
}

// Coordination configures multi-instance lease arbitration.
type Coordination struct {
	HeartbeatInterval int `toml:"heartbeat_interval"`
	StaleMultiplier   int `toml:"stale_multiplier"`
}

// Activity configures the silence detector poll cadence.
type Activity struct {
	PollInterval int `toml:"poll_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for drover.
//
// Sections by subsystem:
//   - Paths: data/log directories and control API bind address
//   - Debug: discovery endpoint, payload injection, protocol timeouts
//   - Queue: queue mode, silence/dwell thresholds, verification and quota knobs
//   - Schedule: interval/daily prompt cadence for non-queue modes
//   - Activity: click-counter poll cadence
//   - Coordination: cross-instance lease timing
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Debug        Debug        `toml:"debug"`
	Queue        Queue        `toml:"queue"`
	Schedule     Schedule     `toml:"schedule"`
	Activity     Activity     `toml:"activity"`
	Coordination Coordination `toml:"coordination"`
	Logging      Logging      `toml:"logging"`
}

// Execution modes accepted in queue.mode.
const (
	ModeQueue    = "queue"
	ModeInterval = "interval"
	ModeDaily    = "daily"
)

// Completion policies accepted in queue.completion_policy.
const (
	PolicyConsume = "consume"
	PolicyLoop    = "loop"
	PolicyStop    = "stop-at-end"
)

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/drover/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("drover.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path to the drover sqlite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "drover.db")
}

// DiscoveryURL returns the fixed target discovery endpoint. The port is taken
// from configuration rather than scanned: probing a port range risks attaching
// to unrelated debuggable processes.
func (c *Config) DiscoveryURL() string {
	return fmt.Sprintf("http://%s:%d/json/list", c.Debug.Host, c.Debug.Port)
}

// EvalTimeout returns the per-request evaluation timeout.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.Debug.EvalTimeout) * time.Second
}

// InjectTimeout returns the payload injection timeout. Injection evaluates a
// large script, so this is allowed to be much longer than EvalTimeout.
func (c *Config) InjectTimeout() time.Duration {
	return time.Duration(c.Debug.InjectTimeout) * time.Second
}

// RefreshInterval returns the target re-discovery cadence.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Debug.RefreshEvery) * time.Second
}

// ConnectTimeout returns the websocket dial timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Debug.ConnectTimeout) * time.Second
}

// SilenceTimeout returns the silence duration after which the current queue
// item is considered complete.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.Queue.SilenceTimeout) * time.Second
}

// MinDwell returns the minimum time an item must run before silence counts.
func (c *Config) MinDwell() time.Duration {
	return time.Duration(c.Queue.MinDwell) * time.Second
}

// StartGrace returns the post-activation window during which only explicit
// user actions may start the queue.
func (c *Config) StartGrace() time.Duration {
	return time.Duration(c.Queue.StartGrace) * time.Second
}

// ActivityPollInterval returns the click-counter poll cadence.
func (c *Config) ActivityPollInterval() time.Duration {
	return time.Duration(c.Activity.PollInterval) * time.Second
}

// LeaseHeartbeat returns the lease renewal cadence.
func (c *Config) LeaseHeartbeat() time.Duration {
	return time.Duration(c.Coordination.HeartbeatInterval) * time.Second
}

// LeaseStaleAfter returns the age past which another instance's lease is
// considered abandoned.
func (c *Config) LeaseStaleAfter() time.Duration {
	return c.LeaseHeartbeat() * time.Duration(c.Coordination.StaleMultiplier)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
