package pool

import (
	"context"
	"encoding/json"
	"fmt"

	"drover/internal/logging"
)

// Stats sums the payload's getStats() counters across all connections.
// Per-connection failures are swallowed; partial data is acceptable on
// this read path.
func (p *Pool) Stats(ctx context.Context) map[string]float64 {
	return p.aggregate(ctx, "getStats()")
}

// AwayActions sums the payload's getAwayActions() counters.
func (p *Pool) AwayActions(ctx context.Context) map[string]float64 {
	return p.aggregate(ctx, "getAwayActions()")
}

// ResetStats zeroes the payload counters on every connection.
func (p *Pool) ResetStats(ctx context.Context) {
	for _, c := range p.liveConns() {
		if !c.injected {
			continue
		}
		evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
		_, err := c.link.Evaluate(evalCtx, "resetStats()")
		cancel()
		if err != nil {
			p.logger.Debug("resetStats failed",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.Error(err))
		}
	}
}

// ClickCount returns the aggregate click counter used by the activity
// monitor. Only the delta between successive reads is meaningful.
func (p *Pool) ClickCount(ctx context.Context) int64 {
	return int64(p.aggregate(ctx, "getStats()")["clicks"])
}

// SetFocusState informs every payload whether the app window has focus.
func (p *Pool) SetFocusState(ctx context.Context, focused bool) {
	expression := fmt.Sprintf("setFocusState(%t)", focused)
	for _, c := range p.liveConns() {
		if !c.injected {
			continue
		}
		evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
		_, err := c.link.Evaluate(evalCtx, expression)
		cancel()
		if err != nil {
			p.logger.Debug("setFocusState failed",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.Error(err))
		}
	}
}

func (p *Pool) aggregate(ctx context.Context, call string) map[string]float64 {
	totals := make(map[string]float64)
	if p.suspended.Load() {
		return totals
	}
	for _, c := range p.liveConns() {
		if !c.injected {
			continue
		}
		evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
		value, err := c.link.Evaluate(evalCtx, call)
		cancel()
		if err != nil {
			p.logger.Debug("counter read failed",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.String("call", call),
				logging.Error(err))
			continue
		}
		var counters map[string]any
		if err := json.Unmarshal(value, &counters); err != nil {
			continue
		}
		for field, raw := range counters {
			if f, ok := raw.(float64); ok {
				totals[field] += f
			}
		}
	}
	return totals
}
