// Package watch reports debounced batches of changed source files.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config configures a Watcher.
type Config struct {
	// Debounce is how long the watcher waits after the last event before
	// reporting a batch.
	Debounce time.Duration
	// Accept reports whether a changed file is of interest.
	Accept func(path string) bool
	// SkipDir reports whether a directory should not be watched.
	SkipDir func(path string) bool
	// OnChange receives each batch of changed paths, sorted.
	OnChange func(paths []string)
	Logger   *slog.Logger
}

// Watcher watches directory trees for changes to accepted files.
type Watcher struct {
	fs  *fsnotify.Watcher
	cfg Config
}

// New creates a Watcher. OnChange is required.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, os.ErrInvalid
	}
	if cfg.Accept == nil {
		cfg.Accept = func(string) bool { return true }
	}
	if cfg.SkipDir == nil {
		cfg.SkipDir = func(string) bool { return false }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fs: fsw, cfg: cfg}, nil
}

// Add watches root and every directory below it that is not skipped.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.cfg.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Run delivers batches until ctx is cancelled, then releases the watcher.
// OnChange runs on the calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(event, pending) {
				timer.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.cfg.Logger.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			clear(pending)
			w.cfg.OnChange(paths)
		}
	}
}

// handle records event and reports whether it added a pending change.
func (w *Watcher) handle(event fsnotify.Event, pending map[string]struct{}) bool {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if w.cfg.SkipDir(event.Name) {
				return false
			}
			if err := w.Add(event.Name); err != nil {
				w.cfg.Logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return false
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if !w.cfg.Accept(event.Name) {
		return false
	}
	pending[event.Name] = struct{}{}
	return true
}
