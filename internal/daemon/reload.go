package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"drover/internal/config"
	"drover/internal/logging"
)

// SetConfigPath enables hot-reload of the runtime-tunable settings from
// the given file. Call before Start.
func (d *Daemon) SetConfigPath(path string) {
	d.configPath = path
}

// watchConfig reloads the scheduler's tunable settings when the config
// file changes. Editors replace files rather than writing in place, so
// the watch is on the parent directory.
func (d *Daemon) watchConfig(ctx context.Context) {
	if d.configPath == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("config watcher unavailable", logging.Error(err))
		return
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(d.configPath)
	if err := watcher.Add(dir); err != nil {
		d.logger.Warn("config watch failed",
			logging.String("dir", dir),
			logging.Error(err))
		return
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors emit bursts of events per save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, d.reloadConfig)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("config watcher error", logging.Error(err))
		}
	}
}

func (d *Daemon) reloadConfig() {
	cfg, _, exists, err := config.Load(d.configPath)
	if err != nil {
		d.logger.Warn("config reload rejected", logging.Error(err))
		return
	}
	if !exists {
		return
	}
	d.sched.ApplyConfig(cfg)
	d.logger.Info("configuration reloaded", logging.String("path", d.configPath))
}
