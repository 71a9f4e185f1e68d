package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads the library when SKILL.md files change on disk, so edits
// show up in the next cycle without a restart.
type Watcher struct {
	lib    *Library
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

func NewWatcher(lib *Library) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{lib: lib, fsw: fsw}, nil
}

// Start watches the library's directories and their skill subdirectories.
// Missing directories are skipped, not errors.
func (w *Watcher) Start(ctx context.Context) error {
	watched := 0
	for _, dir := range w.lib.Dirs() {
		if err := w.fsw.Add(dir); err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("skills watcher: cannot watch dir", "path", dir, "error", err)
			}
			continue
		}
		watched++
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := w.fsw.Add(filepath.Join(dir, e.Name())); err == nil {
					watched++
				}
			}
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	slog.Info("skills watcher started", "watched", watched)
	return nil
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.fsw.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("skills watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A new skill folder needs its own watch to see its SKILL.md later.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
		}
	}

	base := filepath.Base(event.Name)
	relevant := strings.EqualFold(base, "SKILL.md") ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
	if !relevant {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	w.lib.Reload()
	slog.Info("skills reloaded", "count", len(w.lib.List()))
}
