package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soyeahso/agentdesk/internal/logging"
)

const defaultWatchDebounce = 200 * time.Millisecond

// DirWatcher reports changes to the exportable directories so clients can
// refresh their file lists. Bursts of events within the debounce window
// collapse into one callback per directory.
type DirWatcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	log      *logging.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDirWatcher starts watching dirs, creating any that are missing.
// A debounce of zero uses the default.
func NewDirWatcher(dirs []string, debounce time.Duration, log *logging.Logger) (*DirWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			fw.Close()
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", d, err)
		}
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &DirWatcher{
		fw:       fw,
		debounce: debounce,
		log:      log.Sub("watcher"),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run delivers debounced change notifications to onChange until ctx is
// cancelled, then releases the watcher.
func (w *DirWatcher) Run(ctx context.Context, onChange func(dir string)) {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("file event")
			w.schedule(filepath.Dir(ev.Name), onChange)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *DirWatcher) schedule(dir string, onChange func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[dir]; ok {
		t.Reset(w.debounce)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[dir] == t {
			delete(w.timers, dir)
		}
		w.mu.Unlock()
		onChange(dir)
	})
	w.timers[dir] = t
}

func (w *DirWatcher) close() {
	w.mu.Lock()
	for dir, t := range w.timers {
		t.Stop()
		delete(w.timers, dir)
	}
	w.mu.Unlock()
	if err := w.fw.Close(); err != nil {
		w.log.Warn().Err(err).Msg("closing watcher")
	}
}
