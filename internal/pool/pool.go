package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"drover/internal/config"
	"drover/internal/logging"
	"drover/internal/protocol"
)

// Pool owns the live debugger links, one per eligible target.
type Pool struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client

	// refreshMu serializes reconciliation; the periodic loop and a
	// forced resync from the scheduler may otherwise overlap.
	refreshMu sync.Mutex

	mu    sync.Mutex
	conns map[string]*conn

	suspended atomic.Bool
}

type conn struct {
	target   Target
	link     *protocol.Link
	injected bool
}

// New constructs a Pool from the daemon configuration.
func New(cfg *config.Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pool"),
		client: &http.Client{Timeout: cfg.ConnectTimeout()},
		conns:  make(map[string]*conn),
	}
}

// SetSuspended toggles standby mode. While suspended the pool performs
// no discovery, injection, or delivery; existing links are closed so a
// lease-holding peer gets the target to itself.
func (p *Pool) SetSuspended(suspended bool) {
	was := p.suspended.Swap(suspended)
	if suspended && !was {
		p.closeAll()
		p.logger.Info("pool suspended")
	}
	if !suspended && was {
		p.logger.Info("pool resumed")
	}
}

// Suspended reports whether the pool is in standby mode.
func (p *Pool) Suspended() bool {
	return p.suspended.Load()
}

// Refresh reconciles the pool against the discovery endpoint: drops dead
// links, dials new eligible targets, and injects the payload where it is
// missing. Injection failures are logged and retried on the next call.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.suspended.Load() {
		return nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	targets, err := p.discover(ctx)
	if err != nil {
		return fmt.Errorf("discover targets: %w", err)
	}

	seen := make(map[string]Target, len(targets))
	for _, target := range targets {
		if eligible(target, p.cfg.Debug.SettingsTitle) {
			seen[target.ID] = target
		}
	}

	p.mu.Lock()
	for id, c := range p.conns {
		if _, ok := seen[id]; ok && !c.link.Closed() {
			continue
		}
		_ = c.link.Close()
		delete(p.conns, id)
		p.logger.Info("target dropped",
			logging.String(logging.FieldTarget, id),
			logging.String("title", c.target.Title))
	}
	existing := make(map[string]bool, len(p.conns))
	for id := range p.conns {
		existing[id] = true
	}
	p.mu.Unlock()

	for id, target := range seen {
		if existing[id] {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout())
		link, err := protocol.Dial(dialCtx, target.WebSocketDebuggerURL,
			protocol.WithLogger(p.logger))
		cancel()
		if err != nil {
			p.logger.Warn("target dial failed",
				logging.String(logging.FieldTarget, id),
				logging.Error(err))
			continue
		}
		p.mu.Lock()
		p.conns[id] = &conn{target: target, link: link}
		p.mu.Unlock()
		p.logger.Info("target connected",
			logging.String(logging.FieldTarget, id),
			logging.String("title", target.Title))
	}

	p.injectAll(ctx)
	return nil
}

func (p *Pool) discover(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DiscoveryURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned %s", resp.Status)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode target list: %w", err)
	}
	return targets, nil
}

func (p *Pool) injectAll(ctx context.Context) {
	for _, c := range p.liveConns() {
		if c.injected {
			continue
		}
		if err := p.inject(ctx, c); err != nil {
			p.logger.Warn("payload injection failed",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.Error(err))
			continue
		}
		p.mu.Lock()
		if cur, ok := p.conns[c.target.ID]; ok {
			cur.injected = true
		}
		p.mu.Unlock()
		p.logger.Info("payload injected",
			logging.String(logging.FieldTarget, c.target.ID))
	}
}

func (p *Pool) inject(ctx context.Context, c *conn) error {
	// A reconnect may land on a target that already carries the payload.
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
	value, err := c.link.Evaluate(probeCtx, "typeof probePromptInput === 'function'")
	cancel()
	if err == nil && string(value) == "true" {
		return nil
	}

	script, err := os.ReadFile(p.cfg.Debug.PayloadPath)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	// First injection evaluates the whole payload and can be slow.
	evalCtx, cancel := context.WithTimeout(ctx, p.cfg.InjectTimeout())
	defer cancel()
	if _, err := c.link.Evaluate(evalCtx, string(script)); err != nil {
		return fmt.Errorf("evaluate payload: %w", err)
	}
	if _, err := c.link.Evaluate(evalCtx, "start({})"); err != nil {
		return fmt.Errorf("start payload: %w", err)
	}
	return nil
}

// liveConns snapshots the connections whose transport is still up.
func (p *Pool) liveConns() []*conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		if !c.link.Closed() {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].target.ID < conns[j].target.ID
	})
	return conns
}

// Targets returns the externally visible state of the pool.
func (p *Pool) Targets() []TargetInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]TargetInfo, 0, len(p.conns))
	for _, c := range p.conns {
		infos = append(infos, TargetInfo{
			ID:       c.target.ID,
			Title:    c.target.Title,
			URL:      c.target.URL,
			Injected: c.injected,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stop tells each payload to stand down and closes every link.
func (p *Pool) Stop() {
	for _, c := range p.liveConns() {
		if !c.injected {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = c.link.Evaluate(ctx, "stop()")
		cancel()
	}
	p.closeAll()
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.conns {
		_ = c.link.Close()
		delete(p.conns, id)
	}
}
