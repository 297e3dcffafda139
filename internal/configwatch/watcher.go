// Package configwatch reloads the runtime-tunable settings of a running
// relay when its TOML config file changes.
package configwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hestia-iot/ntnrelay/internal/cliconfig"
	"github.com/hestia-iot/ntnrelay/internal/ports"
)

// DefaultDebounceDelay is the quiet period after a file event before the
// file is re-read.
const DefaultDebounceDelay = 100 * time.Millisecond

// ApplyFunc receives the reloaded settings.
type ApplyFunc func(cliconfig.Reloadable)

// Config holds configuration options for the watcher.
type Config struct {
	// Path is the TOML file to watch.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// Watcher watches one config file. Its directory is watched rather than
// the file so that editors replacing the file by rename are seen.
type Watcher struct {
	path   string
	delay  time.Duration
	base   cliconfig.Config
	apply  ApplyFunc
	logger ports.Logger

	mu       sync.Mutex
	debounce *time.Timer
	wg       sync.WaitGroup
}

// New returns a watcher. base supplies values for settings the file omits.
func New(cfg Config, base cliconfig.Config, apply ApplyFunc, logger ports.Logger) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Watcher{
		path:   cfg.Path,
		delay:  cfg.DebounceDelay,
		base:   base,
		apply:  apply,
		logger: logger,
	}
}

// Run watches until ctx is done. It returns an error only if the watch
// cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching config file", ports.String("path", w.path))

	defer func() {
		w.mu.Lock()
		// A stopped timer never runs its callback, so release its slot here.
		if w.debounce != nil && w.debounce.Stop() {
			w.wg.Done()
		}
		w.debounce = nil
		w.mu.Unlock()
		w.wg.Wait()
	}()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil && w.debounce.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.debounce = time.AfterFunc(w.delay, func() {
		defer w.wg.Done()
		if ctx.Err() != nil {
			return
		}
		w.Reload()
	})
}

// Reload re-reads the file and applies it. A file that fails to parse is
// logged and the current settings stay in effect.
func (w *Watcher) Reload() bool {
	fc, err := cliconfig.LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping current settings",
			ports.String("path", w.path), ports.Err(err))
		return false
	}
	r := cliconfig.ReloadableFrom(fc, w.base)
	if r.MaxAttempts < 1 {
		w.logger.Warn("config reload ignored invalid max_attempts", ports.Int("max_attempts", r.MaxAttempts))
		r.MaxAttempts = w.base.MaxAttempts
	}
	w.logger.Info("config reloaded",
		ports.Int("max_attempts", r.MaxAttempts),
		ports.Any("trigger_keys", r.TriggerKeys),
		ports.String("log_level", r.LogLevel))
	w.apply(r)
	return true
}
