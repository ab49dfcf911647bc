package shared

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigWatcher reloads a config file when it changes on disk and hands the result to a callback.
type ConfigWatcher struct {
	path     string
	logger   *log.Logger
	onChange func(*Config)
	watcher  *fsnotify.Watcher
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, logger *log.Logger, onChange func(*Config)) *ConfigWatcher {
	if logger == nil {
		logger = NewLogger(nil)
	}
	return &ConfigWatcher{path: path, logger: WithLogger(logger, "component", "config"), onChange: onChange}
}

// Start begins watching. The watcher stops when ctx is done.
//
// The parent directory is watched so editors that replace the file by rename are seen.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}
	w.watcher = watcher

	w.logger.Info("watching config file", "path", w.path)
	go w.loop(ctx)
	return nil
}

func (w *ConfigWatcher) loop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		_ = w.watcher.Close()
	}()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "err", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "err", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
