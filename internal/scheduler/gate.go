package scheduler

import (
	"drover/internal/logging"
	"drover/internal/metrics"
)

// SetQuotaExhausted records the remote quota state. Only edges matter:
// the rising edge just flips state (silence checks already respect it),
// the falling edge performs exactly one recovery action — re-dispatch
// the current item if a run was interrupted, otherwise send the
// configured continuation prompt.
func (s *Scheduler) SetQuotaExhausted(exhausted bool) {
	s.mu.Lock()
	if s.quotaExhausted == exhausted {
		s.mu.Unlock()
		return
	}
	s.quotaExhausted = exhausted

	if exhausted {
		s.mu.Unlock()
		metrics.QuotaExhaustedState.Set(1)
		s.logger.Info("quota exhausted")
		return
	}
	metrics.QuotaExhaustedState.Set(0)

	// Falling edge. The interrupted task may not have finished before
	// exhaustion cut it off, so it is re-sent rather than advanced past.
	switch {
	case s.settings.quotaResume && s.running:
		s.lastActivityAt = s.clk.Now()
		s.taskStartedAt = s.lastActivityAt
		s.itemDispatched = false
		s.enqueueLocked(dispatchRequest{
			kind:       dispatchRun,
			generation: s.generation,
			item:       s.queue[s.index],
			index:      s.index,
		})
		s.mu.Unlock()
		s.logger.Info("quota restored, re-dispatching current item",
			logging.Int(logging.FieldQueueIndex, s.index))
	case !s.running && s.settings.autoContinue:
		prompt := s.settings.continuePrompt
		s.enqueueLocked(dispatchRequest{
			kind:       dispatchStandalone,
			generation: s.generation,
			item:       QueueItem{Kind: KindTask, Text: prompt},
		})
		s.mu.Unlock()
		s.logger.Info("quota restored, sending continuation prompt")
	default:
		s.mu.Unlock()
		s.logger.Info("quota restored")
	}
}

// QuotaExhausted reports the gate state.
func (s *Scheduler) QuotaExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaExhausted
}
