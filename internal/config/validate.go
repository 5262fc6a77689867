package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDebug(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateDebug() error {
	if strings.TrimSpace(c.Debug.Host) == "" {
		return errors.New("debug.host must be set")
	}
	if c.Debug.Port <= 0 || c.Debug.Port > 65535 {
		return errors.New("debug.port must be a valid TCP port")
	}
	if strings.TrimSpace(c.Debug.PayloadPath) == "" {
		return errors.New("debug.payload_path must be set")
	}
	return ensurePositiveMap(map[string]int{
		"debug.eval_timeout":     c.Debug.EvalTimeout,
		"debug.inject_timeout":   c.Debug.InjectTimeout,
		"debug.refresh_interval": c.Debug.RefreshEvery,
		"debug.connect_timeout":  c.Debug.ConnectTimeout,
	})
}

func (c *Config) validateQueue() error {
	switch c.Queue.Mode {
	case ModeQueue, ModeInterval, ModeDaily:
	default:
		return fmt.Errorf("queue.mode must be one of %q, %q, %q", ModeQueue, ModeInterval, ModeDaily)
	}
	switch c.Queue.CompletionPolicy {
	case PolicyConsume, PolicyLoop, PolicyStop:
	default:
		return fmt.Errorf("queue.completion_policy must be one of %q, %q, %q", PolicyConsume, PolicyLoop, PolicyStop)
	}
	if c.Queue.VerifyEnabled && strings.TrimSpace(c.Queue.VerifyPrompt) == "" {
		return errors.New("queue.verify_prompt must be set when queue.verify_enabled is true")
	}
	if c.Queue.AutoContinue && strings.TrimSpace(c.Queue.ContinuePrompt) == "" {
		return errors.New("queue.continue_prompt must be set when queue.auto_continue is true")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Queue.Mode == ModeInterval && c.Schedule.IntervalMinutes <= 0 {
		return errors.New("schedule.interval_minutes must be positive in interval mode")
	}
	if c.Queue.Mode == ModeDaily {
		if _, err := time.Parse("15:04", strings.TrimSpace(c.Schedule.DailyTime)); err != nil {
			return fmt.Errorf("schedule.daily_time must be HH:MM: %w", err)
		}
	}
	if (c.Queue.Mode == ModeInterval || c.Queue.Mode == ModeDaily) && strings.TrimSpace(c.Schedule.Prompt) == "" {
		return errors.New("schedule.prompt must be set in interval or daily mode")
	}
	return nil
}

func (c *Config) validateTiming() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.silence_timeout":           c.Queue.SilenceTimeout,
		"queue.min_dwell":                 c.Queue.MinDwell,
		"activity.poll_interval":          c.Activity.PollInterval,
		"coordination.heartbeat_interval": c.Coordination.HeartbeatInterval,
	}); err != nil {
		return err
	}
	if c.Queue.StartGrace < 0 {
		return errors.New("queue.start_grace must be >= 0")
	}
	if c.Queue.SilenceTimeout <= c.Queue.MinDwell {
		return errors.New("queue.silence_timeout must be greater than queue.min_dwell")
	}
	if c.Coordination.StaleMultiplier < 2 {
		return errors.New("coordination.stale_multiplier must be >= 2")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
