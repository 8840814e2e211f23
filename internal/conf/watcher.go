package conf

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchedFile keeps the contents of an operator-edited text file current.
// While the watcher runs, edits are picked up after a short debounce; before
// Start (or if the directory cannot be watched) every read goes to disk.
type WatchedFile struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	content  string
	loaded   bool
	watching bool

	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	pending     time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatchedFile creates a watched file; a missing file reads as empty
func NewWatchedFile(path string, logger *zap.Logger) *WatchedFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchedFile{
		path:        path,
		logger:      logger.With(zap.String("file", path)),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Path returns the watched path
func (w *WatchedFile) Path() string {
	return w.path
}

// Text returns the trimmed file contents, or "" when the file is absent
func (w *WatchedFile) Text() string {
	w.mu.RLock()
	if w.watching && w.loaded {
		c := w.content
		w.mu.RUnlock()
		return c
	}
	w.mu.RUnlock()
	return w.reload()
}

// Lines returns the non-empty trimmed lines of the file
func (w *WatchedFile) Lines() []string {
	text := w.Text()
	if text == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (w *WatchedFile) reload() string {
	var content string
	data, err := os.ReadFile(w.path)
	switch {
	case err == nil:
		content = strings.TrimSpace(string(data))
	case os.IsNotExist(err):
	default:
		w.logger.Warn("read watched file", zap.Error(err))
	}

	w.mu.Lock()
	changed := w.loaded && w.content != content
	w.content = content
	w.loaded = true
	w.mu.Unlock()

	if changed {
		w.logger.Info("watched file reloaded", zap.Int("bytes", len(content)))
	}
	return content
}

// Start watches the file's directory so replacements by editors are seen too.
// A directory that cannot be watched leaves the file in read-through mode.
func (w *WatchedFile) Start() error {
	w.mu.Lock()
	if w.watching || w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("watch directory failed, reading through", zap.Error(err))
		watcher.Close()
		return nil
	}

	w.mu.Lock()
	w.watcher = watcher
	w.watching = true
	w.mu.Unlock()

	w.reload()
	go w.run()
	return nil
}

// Stop ends the watch; later reads go to disk again
func (w *WatchedFile) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	w.watching = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close watcher", zap.Error(err))
	}
}

func (w *WatchedFile) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounceDur / 2)
	defer ticker.Stop()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.pending = time.Now().Add(w.debounceDur)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			if !w.pending.IsZero() && !now.Before(w.pending) {
				w.pending = time.Time{}
				w.reload()
			}
		}
	}
}
