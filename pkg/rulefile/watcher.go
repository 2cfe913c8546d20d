package rulefile

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	DefaultDebounce    = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// ApplyFunc installs a freshly parsed rule set. Returning an error keeps
// the previous rules.
type ApplyFunc func(rules map[notifications.Type]notifications.ProcessingRule) error

// Watcher reloads a rule file when it changes on disk.
type Watcher struct {
	path     string
	apply    ApplyFunc
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastHash uint64
	reloads  int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long to wait after the last change event before
// reloading, so editors that write in several steps trigger one reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for path that hands every valid new rule
// set to apply.
func NewWatcher(path string, apply ApplyFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		apply:    apply,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reloads returns how many rule sets were applied.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Reload reads the file and applies it unless the content is unchanged.
func (w *Watcher) Reload(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	h := xxhash.Sum64(data)
	w.mu.Lock()
	unchanged := h == w.lastHash
	w.mu.Unlock()
	if unchanged {
		w.logger.LogAttrs(ctx, slog.LevelDebug, "rule file unchanged", slog.String("path", w.path))
		return nil
	}

	rules, err := Parse(data)
	if err != nil {
		return err
	}
	if err := w.apply(rules); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastHash = h
	w.reloads++
	w.mu.Unlock()

	w.logger.LogAttrs(ctx, slog.LevelInfo, "rules reloaded",
		slog.String("path", w.path),
		slog.Int("rules", len(rules)),
	)
	return nil
}

// Watch applies the file once and then follows its changes until ctx is
// done. The parent directory is watched so editors that replace the file
// are handled. A broken watcher is recreated with backoff.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.Reload(ctx); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if err := w.Reload(ctx); err != nil {
				w.logger.LogAttrs(ctx, slog.LevelWarn, "rule reload rejected, keeping previous rules",
					slog.String("path", w.path),
					logger.Error(err),
				)
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := restartBackoffBase
	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fw.Add(dir); err != nil {
				_ = fw.Close()
			}
		}
		if err != nil {
			w.logger.LogAttrs(ctx, slog.LevelWarn, "rule watcher init failed",
				slog.String("dir", dir),
				logger.Error(err),
			)
			wait := backoff + rand.N(backoff/2+1)
			backoff = min(backoff*2, restartBackoffMax)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}
		backoff = restartBackoffBase

		if done := w.follow(ctx, fw, file, schedule); done {
			return nil
		}
	}
}

// follow consumes watcher events until ctx is done (true) or the watcher
// breaks (false).
func (w *Watcher) follow(ctx context.Context, fw *fsnotify.Watcher, file string, schedule func()) bool {
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-fw.Events:
			if !ok {
				return false
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return false
			}
			if err != nil {
				w.logger.LogAttrs(ctx, slog.LevelWarn, "rule watcher error", logger.Error(err))
				schedule()
			}
		}
	}
}
