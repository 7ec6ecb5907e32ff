package mentor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits after the last file event
// before reloading, so editors that write in bursts trigger one reload.
const defaultDebounce = 200 * time.Millisecond

// ConfigWatcher reloads an engine's configuration when its config file
// changes on disk.
type ConfigWatcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewConfigWatcher creates a watcher that applies the config at path to the
// engine whenever the file changes.
func NewConfigWatcher(engine *Engine, path string) *ConfigWatcher {
	return &ConfigWatcher{
		engine:   engine,
		path:     path,
		debounce: defaultDebounce,
		logger:   engine.logger.With("component", "configwatch"),
	}
}

// Watch blocks until ctx is canceled, reloading the config after each change.
// A config that fails to load or validate is logged and skipped; the engine
// keeps its previous configuration.
func (w *ConfigWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("mentor: create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("mentor: watch %s: %w", w.path, err)
	}

	w.logger.Info("config watch started", "path", w.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("mentor: watcher events channel closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("mentor: watcher errors channel closed")
			}
			w.logger.Error("config watch error", "error", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous", "error", err)
		return
	}
	if err := w.engine.Reconfigure(cfg); err != nil {
		w.logger.Error("config apply failed, keeping previous", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
}
