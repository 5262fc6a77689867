package testsupport

import (
	"path/filepath"
	"testing"

	"drover/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Debug.PayloadPath = filepath.Join(base, "payload.js")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDebugEndpoint points the config at a specific debug host and port.
func WithDebugEndpoint(host string, port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Debug.Host = host
		b.cfg.Debug.Port = port
	}
}

// WithQueueTiming overrides the silence timeout and minimum dwell, in seconds.
func WithQueueTiming(silence, dwell int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.SilenceTimeout = silence
		b.cfg.Queue.MinDwell = dwell
	}
}

// WithCompletionPolicy sets the queue completion policy on the test config.
func WithCompletionPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.CompletionPolicy = policy
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
