package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"drover/internal/clock"
	"drover/internal/config"
	"drover/internal/logging"
	"drover/internal/metrics"
	"drover/internal/pool"
	"drover/internal/store"
)

// Sender delivers prompts, normally the connection pool.
type Sender interface {
	SendPrompt(ctx context.Context, text, conversation string) pool.SendResult
	Refresh(ctx context.Context) error
}

// TaskSource is the persisted task list, normally the store.
type TaskSource interface {
	ListTasks(ctx context.Context) ([]*store.Task, error)
	RemoveFirstTask(ctx context.Context) (*store.Task, error)
	ClearTasks(ctx context.Context) (int64, error)
}

// settings holds the runtime-tunable subset of the configuration.
type settings struct {
	mode           string
	policy         string
	silence        time.Duration
	dwell          time.Duration
	grace          time.Duration
	verifyEnabled  bool
	verifyPrompt   string
	quotaResume    bool
	autoContinue   bool
	continuePrompt string
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		mode:           cfg.Queue.Mode,
		policy:         cfg.Queue.CompletionPolicy,
		silence:        cfg.SilenceTimeout(),
		dwell:          cfg.MinDwell(),
		grace:          cfg.StartGrace(),
		verifyEnabled:  cfg.Queue.VerifyEnabled,
		verifyPrompt:   cfg.Queue.VerifyPrompt,
		quotaResume:    cfg.Queue.QuotaResume,
		autoContinue:   cfg.Queue.AutoContinue,
		continuePrompt: cfg.Queue.ContinuePrompt,
	}
}

type dispatchKind int

const (
	dispatchRun dispatchKind = iota
	dispatchStandalone
)

type dispatchRequest struct {
	kind       dispatchKind
	generation uint64
	item       QueueItem
	index      int
}

// Scheduler owns the queue state machine.
type Scheduler struct {
	tasks  TaskSource
	sender Sender
	clk    clock.Clock
	logger *slog.Logger

	dispatchCh chan dispatchRequest

	mu             sync.Mutex
	settings       settings
	running        bool
	paused         bool
	queue          []QueueItem
	index          int
	generation     uint64
	itemDispatched bool
	quotaExhausted bool
	conversation   string
	taskStartedAt  time.Time
	lastActivityAt time.Time
	activatedAt    time.Time
	history        []HistoryEntry
	lastError      string
	onRunStart     func()
}

// New builds a scheduler. Call Run on a goroutine before issuing
// commands that dispatch prompts.
func New(cfg *config.Config, tasks TaskSource, sender Sender, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		tasks:       tasks,
		sender:      sender,
		clk:         clk,
		logger:      logging.NewComponentLogger(logger, "scheduler"),
		dispatchCh:  make(chan dispatchRequest, 16),
		settings:    settingsFrom(cfg),
		activatedAt: clk.Now(),
	}
}

// SetRunStartHook registers a callback fired at the start of each run,
// used to re-prime the activity monitor's baseline.
func (s *Scheduler) SetRunStartHook(fn func()) {
	s.mu.Lock()
	s.onRunStart = fn
	s.mu.Unlock()
}

// ApplyConfig adopts the runtime-tunable settings from a reloaded
// configuration. A run in progress keeps its queue but picks up the new
// timing and policy values immediately.
func (s *Scheduler) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.settings = settingsFrom(cfg)
	s.mu.Unlock()
	s.logger.Info("runtime settings reloaded")
}

// Run executes the dispatch worker until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.dispatchCh:
			s.process(ctx, req)
		}
	}
}

// Start begins a queue run. Automated sources are rejected inside the
// post-activation grace window so stale triggers cannot self-start the
// queue right after a restart.
func (s *Scheduler) Start(ctx context.Context, source StartSource) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if s.settings.mode != config.ModeQueue {
		s.mu.Unlock()
		return ErrWrongMode
	}
	if source != StartSourceUser && s.clk.Since(s.activatedAt) < s.settings.grace {
		s.mu.Unlock()
		return ErrGraceActive
	}
	verify := s.settings.verifyEnabled
	verifyPrompt := s.settings.verifyPrompt
	s.mu.Unlock()

	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	queue := buildRuntimeQueue(tasks, verify, verifyPrompt)
	if len(queue) == 0 {
		return ErrQueueEmpty
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.generation++
	s.running = true
	s.paused = false
	s.queue = queue
	s.index = 0
	s.itemDispatched = false
	s.lastError = ""
	now := s.clk.Now()
	s.taskStartedAt = now
	s.lastActivityAt = now
	hook := s.onRunStart
	s.enqueueLocked(dispatchRequest{
		kind:       dispatchRun,
		generation: s.generation,
		item:       s.queue[0],
		index:      0,
	})
	queueLen := len(s.queue)
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	metrics.QueueRunning.Set(1)
	metrics.QueueLength.Set(float64(queueLen))
	s.logger.Info("queue started",
		logging.String("source", source.String()),
		logging.Int("items", queueLen))
	return nil
}

func buildRuntimeQueue(tasks []*store.Task, verify bool, verifyPrompt string) []QueueItem {
	queue := make([]QueueItem, 0, len(tasks)*2)
	for i, task := range tasks {
		queue = append(queue, QueueItem{Kind: KindTask, Text: task.Text, SourceIndex: i})
		if verify {
			queue = append(queue, QueueItem{Kind: KindVerification, Text: verifyPrompt, SourceIndex: i})
		}
	}
	return queue
}

// RecordActivity notes that the target showed signs of life.
func (s *Scheduler) RecordActivity() {
	s.mu.Lock()
	s.lastActivityAt = s.clk.Now()
	s.mu.Unlock()
}

// CheckSilence advances the queue when the current item has dwelled
// long enough and the target has been silent past the threshold. It is
// a no-op outside an unpaused, quota-clear queue run.
func (s *Scheduler) CheckSilence(ctx context.Context) {
	s.mu.Lock()
	if !s.running || s.paused || s.quotaExhausted || s.settings.mode != config.ModeQueue {
		s.mu.Unlock()
		return
	}
	if !s.itemDispatched {
		s.mu.Unlock()
		return
	}
	dwelled := s.clk.Since(s.taskStartedAt)
	silent := s.clk.Since(s.lastActivityAt)
	if dwelled < s.settings.dwell || silent < s.settings.silence {
		s.mu.Unlock()
		return
	}
	s.logger.Info("silence threshold reached",
		logging.Duration("silent", silent),
		logging.Int(logging.FieldQueueIndex, s.index))
	s.advanceLocked(ctx)
	s.mu.Unlock()
}

// Skip advances past the current item without waiting for silence or a
// confirmed dispatch.
func (s *Scheduler) Skip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.logger.Info("item skipped", logging.Int(logging.FieldQueueIndex, s.index))
	s.advanceLocked(ctx)
	return nil
}

// advanceLocked moves past the current item. Callers hold s.mu.
func (s *Scheduler) advanceLocked(ctx context.Context) {
	current := s.queue[s.index]
	if s.settings.policy == config.PolicyConsume && current.Kind == KindTask {
		if _, err := s.tasks.RemoveFirstTask(ctx); err != nil {
			s.logger.Error("consume task failed", logging.Error(err))
		}
	}

	s.index++
	s.itemDispatched = false
	now := s.clk.Now()
	s.taskStartedAt = now
	s.lastActivityAt = now

	if s.index >= len(s.queue) {
		if s.settings.policy == config.PolicyLoop {
			s.rebuildAndLoopLocked(ctx)
			return
		}
		s.logger.Info("queue completed", logging.Int("items", len(s.queue)))
		s.stopLocked()
		return
	}

	s.enqueueLocked(dispatchRequest{
		kind:       dispatchRun,
		generation: s.generation,
		item:       s.queue[s.index],
		index:      s.index,
	})
}

func (s *Scheduler) rebuildAndLoopLocked(ctx context.Context) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		s.logger.Error("rebuild for loop failed", logging.Error(err))
		s.stopLocked()
		return
	}
	queue := buildRuntimeQueue(tasks, s.settings.verifyEnabled, s.settings.verifyPrompt)
	if len(queue) == 0 {
		s.logger.Info("nothing left to loop over")
		s.stopLocked()
		return
	}
	s.queue = queue
	s.index = 0
	s.logger.Info("queue looped", logging.Int("items", len(queue)))
	metrics.QueueLength.Set(float64(len(queue)))
	s.enqueueLocked(dispatchRequest{
		kind:       dispatchRun,
		generation: s.generation,
		item:       s.queue[0],
		index:      0,
	})
}

// Pause suspends silence-driven advancement without losing position.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.paused = true
	s.logger.Info("queue paused")
	return nil
}

// Resume lifts a pause. The activity clock restarts so a long pause
// does not count as silence.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.paused = false
	s.lastActivityAt = s.clk.Now()
	s.logger.Info("queue resumed")
	return nil
}

// Stop ends the current run. Stopping an idle scheduler is a stable
// no-op; the returned flag reports whether anything was running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.logger.Info("queue stopped", logging.Int(logging.FieldQueueIndex, s.index))
	s.stopLocked()
	return true
}

// Reset stops the run and clears the persisted task list.
func (s *Scheduler) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.stopLocked()
	}
	s.mu.Unlock()

	removed, err := s.tasks.ClearTasks(ctx)
	if err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	s.logger.Info("queue reset", logging.Int64("tasksCleared", removed))
	return nil
}

// stopLocked tears down the run state. Callers hold s.mu. The
// generation bump makes any in-flight dispatch result stale.
func (s *Scheduler) stopLocked() {
	s.running = false
	s.paused = false
	s.queue = nil
	s.index = 0
	s.itemDispatched = false
	s.generation++
	metrics.QueueRunning.Set(0)
	metrics.QueueLength.Set(0)
}

// SetConversation pins deliveries to a specific conversation target.
func (s *Scheduler) SetConversation(target string) {
	s.mu.Lock()
	s.conversation = target
	s.mu.Unlock()
	s.logger.Info("conversation target set",
		logging.String(logging.FieldConversation, target))
}

// SendStandalone serializes a one-off prompt through the dispatch
// worker, outside any queue run. Used by schedule modes and the quota
// gate's continuation.
func (s *Scheduler) SendStandalone(text string) {
	s.mu.Lock()
	s.enqueueLocked(dispatchRequest{
		kind:       dispatchStandalone,
		generation: s.generation,
		item:       QueueItem{Kind: KindTask, Text: text},
	})
	s.mu.Unlock()
}

// Status reports the externally visible scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Enabled:        s.settings.mode == config.ModeQueue,
		Mode:           s.settings.mode,
		Running:        s.running,
		QueueLength:    len(s.queue),
		QueueIndex:     s.index,
		QuotaExhausted: s.quotaExhausted,
		Paused:         s.paused,
		Conversation:   s.conversation,
		LastError:      s.lastError,
	}
	if s.running && s.index < len(s.queue) {
		status.CurrentPrompt = truncate(s.queue[s.index].Text)
	}
	return status
}

// History returns recent confirmed deliveries, newest first.
func (s *Scheduler) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]HistoryEntry, len(s.history))
	for i, entry := range s.history {
		entries[len(s.history)-1-i] = entry
	}
	return entries
}

func (s *Scheduler) enqueueLocked(req dispatchRequest) {
	select {
	case s.dispatchCh <- req:
	default:
		s.logger.Error("dispatch queue full, request dropped",
			logging.Int(logging.FieldQueueIndex, req.index))
	}
}

// supersededLocked reports whether a dispatch request no longer refers
// to the current run position. A generation bump invalidates everything
// in flight; a Skip leaves the generation alone but moves the index, so
// run-kind requests must also still point at the current item before
// their result may mark it dispatched. Callers hold s.mu.
func (s *Scheduler) supersededLocked(req dispatchRequest) bool {
	if req.generation != s.generation {
		return true
	}
	return req.kind == dispatchRun && req.index != s.index
}

// process performs one delivery on the worker goroutine.
func (s *Scheduler) process(ctx context.Context, req dispatchRequest) {
	s.mu.Lock()
	stale := s.supersededLocked(req)
	conversation := s.conversation
	s.mu.Unlock()
	if stale {
		s.logger.Debug("discarding stale dispatch",
			logging.Uint64(logging.FieldGeneration, req.generation),
			logging.Int(logging.FieldQueueIndex, req.index))
		return
	}

	result := s.sender.SendPrompt(ctx, req.item.Text, conversation)
	if !result.Confirmed() {
		// One forced resync, one retry. Never wait silently on a prompt
		// that was never delivered.
		s.logger.Warn("delivery unconfirmed, forcing pool resync",
			logging.String("detail", result.Detail),
			logging.Int(logging.FieldQueueIndex, req.index))
		if err := s.sender.Refresh(ctx); err != nil {
			s.logger.Warn("forced resync failed", logging.Error(err))
		}
		result = s.sender.SendPrompt(ctx, req.item.Text, conversation)
	}

	s.applyResult(req, result, conversation)
}

func (s *Scheduler) applyResult(req dispatchRequest, result pool.SendResult, conversation string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.supersededLocked(req) {
		s.logger.Debug("discarding stale dispatch result",
			logging.Uint64(logging.FieldGeneration, req.generation),
			logging.Int(logging.FieldQueueIndex, req.index))
		return
	}

	if result.Confirmed() {
		s.history = append(s.history, HistoryEntry{
			Text:         req.item.Text,
			Truncated:    truncate(req.item.Text),
			Timestamp:    s.clk.Now(),
			Status:       "sent",
			Conversation: conversation,
		})
		if len(s.history) > historyLimit {
			s.history = s.history[len(s.history)-historyLimit:]
		}
		metrics.PromptsDelivered.Inc()
		if req.kind == dispatchRun {
			s.itemDispatched = true
			now := s.clk.Now()
			s.taskStartedAt = now
			s.lastActivityAt = now
		}
		s.logger.Info("prompt dispatched",
			logging.String(logging.FieldPrompt, truncate(req.item.Text)),
			logging.String("kind", req.item.Kind.String()),
			logging.String(logging.FieldTarget, result.Target))
		return
	}

	metrics.PromptsFailed.Inc()
	if req.kind == dispatchStandalone {
		s.logger.Warn("standalone prompt undelivered",
			logging.String("detail", result.Detail))
		return
	}

	s.lastError = fmt.Sprintf("delivery failed at item %d: %s", req.index, result.Detail)
	s.logger.Error("delivery failed after retry, stopping queue",
		logging.Int(logging.FieldQueueIndex, req.index),
		logging.String("outcome", result.Outcome.String()),
		logging.String("detail", result.Detail))
	s.stopLocked()
}
