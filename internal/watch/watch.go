// Package watch observes the feature-list file for edits made while a
// run is active, so the workflow always reads the latest version when it
// next consults the list.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/logging"
)

// debounceWindow collapses the burst of events editors produce for a
// single save.
const debounceWindow = 50 * time.Millisecond

// Watcher watches one feature-list file and publishes a bus event when
// its content changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	bus     *event.Bus
	logger  *logging.Logger

	mu      sync.RWMutex
	content string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Watcher over path and reads its initial content. The
// file's directory is watched rather than the file itself, since editors
// commonly replace files by rename.
func New(path string, bus *event.Bus, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    abs,
		watcher: fsw,
		bus:     bus,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	w.reload()
	return w, nil
}

// Path returns the watched file's absolute path.
func (w *Watcher) Path() string { return w.path }

// Content returns the most recently read file content. Empty when the
// file does not exist.
func (w *Watcher) Content() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.content
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// watchLoop debounces events for the watched file and reloads on each
// settled change.
func (w *Watcher) watchLoop() {
	debounce := time.NewTimer(0)
	<-debounce.C

	dirty := false
	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			dirty = true
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			if !dirty {
				continue
			}
			dirty = false
			if w.reload() {
				w.logger.Debug("feature list changed", "path", w.path)
				if w.bus != nil {
					w.bus.Publish(event.NewFeatureListChangedEvent(w.path))
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("feature list watch error", "error", err)
		}
	}
}

// reload reads the file and reports whether the content changed. A
// missing file reads as empty.
func (w *Watcher) reload() bool {
	data, err := os.ReadFile(w.path)
	if err != nil {
		data = nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next := string(data)
	if next == w.content {
		return false
	}
	w.content = next
	return true
}
