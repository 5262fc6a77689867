package daemon

import (
	"context"
	"strings"
	"time"

	"drover/internal/config"
	"drover/internal/logging"
)

// scheduleLoop drives the interval and daily execution modes. In queue
// mode there is nothing to do here; the operator starts runs explicitly.
func (d *Daemon) scheduleLoop(ctx context.Context) {
	switch d.cfg.Queue.Mode {
	case config.ModeInterval:
		d.intervalLoop(ctx)
	case config.ModeDaily:
		d.dailyLoop(ctx)
	}
}

func (d *Daemon) intervalLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Schedule.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("interval schedule armed", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sendScheduled()
		}
	}
}

func (d *Daemon) dailyLoop(ctx context.Context) {
	at, err := time.Parse("15:04", strings.TrimSpace(d.cfg.Schedule.DailyTime))
	if err != nil {
		d.logger.Error("invalid daily schedule time", logging.Error(err))
		return
	}

	d.logger.Info("daily schedule armed",
		logging.String("at", d.cfg.Schedule.DailyTime))
	for {
		wait := untilNext(time.Now(), at.Hour(), at.Minute())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.sendScheduled()
		}
	}
}

// untilNext returns the duration from now to the next local occurrence
// of hour:minute.
func untilNext(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (d *Daemon) sendScheduled() {
	if d.pool.Suspended() {
		d.logger.Info("scheduled prompt skipped, standing by")
		return
	}
	d.logger.Info("dispatching scheduled prompt")
	d.sched.SendStandalone(d.cfg.Schedule.Prompt)
}
