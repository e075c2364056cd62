// Package watcher reports changes to configuration files.
//
// It watches the parent directory of each file rather than the file
// itself, so editors that save by writing a temporary file and renaming it
// over the original are still observed. Bursts of events for one file are
// debounced into a single callback.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 100 * time.Millisecond

// ErrRunning is returned by Start on a running watcher.
var ErrRunning = errors.New("watcher already running")

// Operation is the kind of file change.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates the file appeared.
	OpCreate

	// OpRemove indicates the file was deleted.
	OpRemove

	// OpRename indicates the file was renamed away.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a debounced file change.
type Event struct {
	Path string
	Op   Operation
	Time time.Time
}

// Handler receives change events.
type Handler func(event Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithClock sets the clock used for debouncing.
func WithClock(c schedule.Clock) Option {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		w.log = l.WithComponent("watcher")
	}
}

type pendingFile struct {
	task *schedule.Task
	op   Operation
}

// Watcher monitors a set of files.
type Watcher struct {
	mu       sync.Mutex
	files    map[string]*pendingFile
	handlers []Handler
	debounce time.Duration
	clock    schedule.Clock
	log      *logging.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		files:    make(map[string]*pendingFile),
		debounce: DefaultDebounce,
		clock:    schedule.Real(),
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch adds path to the watch list. The file does not need to exist yet.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; ok {
		return nil
	}
	w.files[abs] = &pendingFile{task: schedule.NewTask(w.clock)}
	if w.fsw != nil {
		return w.fsw.Add(filepath.Dir(abs))
	}
	return nil
}

// WatchedFiles returns the absolute paths being watched.
func (w *Watcher) WatchedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for path := range w.files {
		files = append(files, path)
	}
	return files
}

// OnChange registers a handler.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching. It returns once the underlying watcher is set
// up; events are processed on a background goroutine until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		return ErrRunning
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := make(map[string]struct{})
	for path := range w.files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, fsw, w.done)
	return nil
}

// Stop ends watching and cancels pending callbacks.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	for _, p := range w.files {
		p.task.Cancel()
	}
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	cancel()
	fsw.Close()
	<-done
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	op, ok := operation(ev.Op)
	if !ok {
		return
	}

	w.mu.Lock()
	p, watched := w.files[abs]
	if watched {
		p.op = op
	}
	debounce := w.debounce
	w.mu.Unlock()

	if !watched {
		return
	}
	p.task.Schedule(debounce, func() { w.fire(abs) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	p, ok := w.files[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	event := Event{Path: path, Op: p.op, Time: w.clock.Now()}
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	w.log.Debug("config file %s: %s", event.Op, path)
	for _, h := range handlers {
		h(event)
	}
}

func operation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		return 0, false
	}
}
