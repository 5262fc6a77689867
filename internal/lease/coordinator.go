// Package lease arbitrates which drover instance may drive the shared
// target. A single persisted record carries the current owner and its
// last heartbeat; whoever holds a fresh lease runs, everyone else
// stands by. Losing the lease is a state change, not an error.
package lease

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"drover/internal/clock"
	"drover/internal/config"
	"drover/internal/logging"
	"drover/internal/metrics"
	"drover/internal/store"
)

// LeaseStore is the persistence surface the coordinator needs.
type LeaseStore interface {
	ReadLease(ctx context.Context) (*store.Lease, error)
	UpsertLease(ctx context.Context, owner string, at time.Time) error
	ReleaseLease(ctx context.Context, owner string) error
}

// Coordinator runs the lease protocol for one instance.
type Coordinator struct {
	store      LeaseStore
	id         string
	interval   time.Duration
	staleAfter time.Duration
	clk        clock.Clock
	logger     *slog.Logger

	mu       sync.Mutex
	active   bool
	onChange func(active bool)
}

// New builds a coordinator with a fresh instance identity.
func New(cfg *config.Config, leases LeaseStore, clk clock.Clock, logger *slog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:      leases,
		id:         uuid.NewString(),
		interval:   cfg.LeaseHeartbeat(),
		staleAfter: cfg.LeaseStaleAfter(),
		clk:        clk,
		logger:     logging.NewComponentLogger(logger, "lease"),
	}
}

// ID returns this instance's lease identity.
func (c *Coordinator) ID() string {
	return c.id
}

// OnChange registers the hook fired on active/standby transitions.
// Typically wired to the pool's suspension switch.
func (c *Coordinator) OnChange(fn func(active bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Active reports whether this instance currently holds the lease.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Run ticks the protocol until ctx is cancelled, then releases the
// lease if held so a standby peer can take over immediately.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			if c.Active() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := c.store.ReleaseLease(releaseCtx, c.id); err != nil {
					c.logger.Warn("lease release failed", logging.Error(err))
				}
				cancel()
			}
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick renews, claims, or concedes the lease once.
func (c *Coordinator) Tick(ctx context.Context) {
	lease, err := c.store.ReadLease(ctx)
	if err != nil {
		c.logger.Warn("lease read failed", logging.Error(err))
		return
	}

	now := c.clk.Now()
	claimable := lease == nil ||
		lease.OwnerID == c.id ||
		now.Sub(lease.LastHeartbeat) > c.staleAfter

	if !claimable {
		c.setActive(false, lease.OwnerID)
		return
	}

	if err := c.store.UpsertLease(ctx, c.id, now); err != nil {
		c.logger.Warn("lease heartbeat failed", logging.Error(err))
		return
	}
	c.setActive(true, c.id)
}

func (c *Coordinator) setActive(active bool, owner string) {
	c.mu.Lock()
	changed := c.active != active
	c.active = active
	hook := c.onChange
	c.mu.Unlock()

	if !changed {
		return
	}
	if active {
		metrics.LeaseActive.Set(1)
		c.logger.Info("lease acquired")
	} else {
		metrics.LeaseActive.Set(0)
		c.logger.Info("standing by, lease held elsewhere",
			logging.String("owner", owner))
	}
	if hook != nil {
		hook(active)
	}
}
