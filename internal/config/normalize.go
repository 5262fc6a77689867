package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Debug.Host = strings.TrimSpace(c.Debug.Host)
	c.Debug.SettingsTitle = strings.TrimSpace(c.Debug.SettingsTitle)
	c.Queue.Mode = strings.ToLower(strings.TrimSpace(c.Queue.Mode))
	c.Queue.CompletionPolicy = strings.ToLower(strings.TrimSpace(c.Queue.CompletionPolicy))
	c.Schedule.DailyTime = strings.TrimSpace(c.Schedule.DailyTime)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Debug.PayloadPath, err = expandPath(c.Debug.PayloadPath); err != nil {
		return fmt.Errorf("debug.payload_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
