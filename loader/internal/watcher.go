package internal

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

type fileState struct {
	firstSeen time.Time
	size      int64
	modTime   time.Time
}

// Watcher scans a directory every interval, and on filesystem events, and
// hands out PDF files once they have stopped changing for the monitoring
// time. A file is handed out once; it is tracked again only after it has left
// the directory.
type Watcher struct {
	dir       string
	stableFor time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	seen       map[string]fileState
	processing map[string]bool
}

func NewWatcher(dir string, stableFor time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:        dir,
		stableFor:  stableFor,
		interval:   time.Second,
		logger:     logger,
		now:        time.Now,
		seen:       make(map[string]fileState),
		processing: make(map[string]bool),
	}
}

// Watch sends ready files to fileChan until ctx is cancelled. Without
// filesystem notifications it falls back to polling alone.
func (w *Watcher) Watch(ctx context.Context, fileChan chan<- string) {
	w.logger.Info("[WATCHER] monitoring folder", "dir", w.dir, "stable_for", w.stableFor)
	defer w.logger.Info("[WATCHER] stopped")

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.logger.Warn("[WATCHER] notifications unavailable, polling only", "error", err)
	} else {
		defer fw.Close()
		if err := fw.Add(w.dir); err != nil {
			w.logger.Warn("[WATCHER] notifications unavailable, polling only", "dir", w.dir, "error", err)
		} else {
			events, errs = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !isPDFEvent(ev) {
				continue
			}
			w.logger.Debug("[WATCHER] event", "op", ev.Op.String(), "file", ev.Name)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("[WATCHER] notification error", "error", err)
			continue
		case <-ticker.C:
		}

		for _, path := range w.scan() {
			select {
			case fileChan <- path:
			case <-ctx.Done():
				return
			}
		}
	}
}

func isPDFEvent(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// scan updates the tracked state and returns the files that became ready.
func (w *Watcher) scan() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("[WATCHER] failed to read source directory", "dir", w.dir, "error", err)
		return nil
	}

	now := w.now()
	current := make(map[string]bool, len(entries))
	var ready []string

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		current[path] = true

		if w.processing[path] {
			continue
		}

		st, ok := w.seen[path]
		if !ok || st.size != info.Size() || !st.modTime.Equal(info.ModTime()) {
			if !ok {
				w.logger.Info("[WATCHER] new file detected", "file", path)
			}
			w.seen[path] = fileState{firstSeen: now, size: info.Size(), modTime: info.ModTime()}
			continue
		}

		if now.Sub(st.firstSeen) >= w.stableFor {
			w.processing[path] = true
			ready = append(ready, path)
		}
	}

	for path := range w.seen {
		if !current[path] {
			delete(w.seen, path)
			delete(w.processing, path)
			w.logger.Debug("[WATCHER] file removed from tracking", "file", path)
		}
	}
	return ready
}
