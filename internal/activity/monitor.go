// Package activity turns the payload's aggregate click counter into a
// liveness signal. Absolute counts are meaningless across restarts;
// only the delta within the current run generation matters.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"drover/internal/logging"
)

// ClickSource supplies the aggregate click counter, normally the pool.
type ClickSource interface {
	ClickCount(ctx context.Context) int64
}

// Recorder receives activity notifications, normally the scheduler.
type Recorder interface {
	RecordActivity()
}

// Monitor is a monotonic-delta detector over the click counter.
type Monitor struct {
	source   ClickSource
	recorder Recorder
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	baseline int64
	primed   bool
}

// NewMonitor wires a monitor between the click source and the recorder.
func NewMonitor(source ClickSource, recorder Recorder, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		source:   source,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "activity"),
		interval: interval,
	}
}

// Run ticks the monitor until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick samples the counter once. The first sample after a reset only
// primes the baseline; subsequent increases report activity.
func (m *Monitor) Tick(ctx context.Context) {
	count := m.source.ClickCount(ctx)

	m.mu.Lock()
	if !m.primed {
		m.baseline = count
		m.primed = true
		m.mu.Unlock()
		return
	}
	increased := count > m.baseline
	if increased {
		m.baseline = count
	}
	m.mu.Unlock()

	if increased {
		m.logger.Debug("activity observed", logging.Int64("clicks", count))
		m.recorder.RecordActivity()
	}
}

// Reset discards the baseline so the next tick primes it afresh. Called
// at the start of each run generation.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.primed = false
	m.baseline = 0
	m.mu.Unlock()
}
