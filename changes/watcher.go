package changes

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeOp is the kind of an external change.
type ChangeOp int

const (
	ChangeWrite ChangeOp = iota
	ChangeRemove
)

func (op ChangeOp) String() string {
	if op == ChangeRemove {
		return "remove"
	}
	return "write"
}

// ExternalChange is a filesystem event on a watched file.
type ExternalChange struct {
	Path string
	Op   ChangeOp
}

// Watcher reports writes and removals of individual files. It watches the
// parent directories, since editors and the agent often replace files by
// rename rather than writing them in place.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	files   map[string]struct{}
	dirs    map[string]int
	events  chan ExternalChange
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

// NewWatcher creates a Watcher and starts its event loop.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		watcher: fw,
		logger:  logger,
		files:   make(map[string]struct{}),
		dirs:    make(map[string]int),
		events:  make(chan ExternalChange, 64),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events returns the change feed. It is closed by Close.
func (w *Watcher) Events() <-chan ExternalChange {
	return w.events
}

// Watch starts reporting changes to path, which must be absolute.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[path] = struct{}{}
	return nil
}

// Unwatch stops reporting changes to path.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; !ok {
		return
	}
	delete(w.files, path)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.watcher.Remove(dir); err != nil {
			w.logger.Debug("unwatch directory", "dir", dir, "error", err)
		}
	}
}

// UnwatchAll stops reporting changes to every file.
func (w *Watcher) UnwatchAll() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.Unlock()
	for _, p := range paths {
		w.Unwatch(p)
	}
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	defer close(w.events)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			change, ok := w.classify(ev)
			if !ok {
				continue
			}
			select {
			case w.events <- change:
			case <-w.stopCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) classify(ev fsnotify.Event) (ExternalChange, bool) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	_, watched := w.files[path]
	w.mu.Unlock()
	if !watched {
		return ExternalChange{}, false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ExternalChange{Path: path, Op: ChangeRemove}, true
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return ExternalChange{Path: path, Op: ChangeWrite}, true
	default:
		return ExternalChange{}, false
	}
}

// Close stops the watcher and closes the Events channel.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.watcher.Close()
	})
	return err
}
