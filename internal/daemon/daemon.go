package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"drover/internal/activity"
	"drover/internal/config"
	"drover/internal/lease"
	"drover/internal/logging"
	"drover/internal/metrics"
	"drover/internal/pool"
	"drover/internal/scheduler"
	"drover/internal/store"
)

// Daemon coordinates the background services and enforces
// single-instance execution per data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *store.Store
	pool        *pool.Pool
	monitor     *activity.Monitor
	sched       *scheduler.Scheduler
	coordinator *lease.Coordinator
	api         *apiServer

	lockPath   string
	lock       *flock.Flock
	configPath string

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	DatabasePath string            `json:"databasePath"`
	LockFilePath string            `json:"lockFilePath"`
	LeaseActive  bool              `json:"leaseActive"`
	InstanceID   string            `json:"instanceId"`
	Scheduler    scheduler.Status  `json:"scheduler"`
	Targets      []pool.TargetInfo `json:"targets"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	targetPool := pool.New(cfg, logger)
	sched := scheduler.New(cfg, st, targetPool, nil, logger)
	monitor := activity.NewMonitor(targetPool, sched, cfg.ActivityPollInterval(), logger)
	sched.SetRunStartHook(monitor.Reset)

	coordinator := lease.New(cfg, st, nil, logger)
	coordinator.OnChange(func(active bool) {
		targetPool.SetSuspended(!active)
		if !active {
			if sched.Stop() {
				logger.Warn("queue stopped, lease lost")
			}
		}
	})

	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       st,
		pool:        targetPool,
		monitor:     monitor,
		sched:       sched,
		coordinator: coordinator,
		lockPath:    filepath.Join(cfg.Paths.DataDir, "droverd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Scheduler exposes the queue state machine to the API layer.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.sched
}

// Pool exposes the connection pool to the API layer.
func (d *Daemon) Pool() *pool.Pool {
	return d.pool
}

// Store exposes the persistence layer to the API layer.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Start acquires the instance lock and launches every loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another drover daemon already owns this data directory")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Stand by until the coordinator claims the lease.
	d.pool.SetSuspended(true)

	go d.sched.Run(d.ctx)
	go d.coordinator.Run(d.ctx)
	go d.monitor.Run(d.ctx)
	go d.refreshLoop(d.ctx)
	go d.silenceLoop(d.ctx)
	go d.scheduleLoop(d.ctx)
	go d.watchConfig(d.ctx)

	if err := d.api.start(d.ctx); err != nil {
		d.Stop()
		return err
	}

	d.running.Store(true)
	d.logger.Info("drover daemon started",
		logging.String("lock", d.lockPath),
		logging.String("discovery", d.cfg.DiscoveryURL()))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	if d.running.Swap(false) {
		d.logger.Info("drover daemon stopped")
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the control API's bound address, empty when the API
// is disabled or the daemon is not running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LeaseActive:  d.coordinator.Active(),
		InstanceID:   d.coordinator.ID(),
		Scheduler:    d.sched.Status(),
		Targets:      d.pool.Targets(),
	}
}

func (d *Daemon) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RefreshInterval())
	defer ticker.Stop()

	d.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshOnce(ctx)
		}
	}
}

func (d *Daemon) refreshOnce(ctx context.Context) {
	if err := d.pool.Refresh(ctx); err != nil {
		d.logger.Warn("pool refresh failed", logging.Error(err))
	}
	metrics.TargetsConnected.Set(float64(len(d.pool.Targets())))
}

func (d *Daemon) silenceLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ActivityPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sched.CheckSilence(ctx)
		}
	}
}
