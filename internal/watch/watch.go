// Package watch reports changes to individual files.
//
// A file is watched through its parent directory so that editors which save
// by writing a temporary file and renaming it over the original are still
// seen. Rapid changes to the same file are coalesced into one event that is
// delivered after the file has been quiet for the debounce delay.
package watch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the default debounce delay.
const DefaultDelay = 100 * time.Millisecond

// Errors returned by watcher operations.
var (
	ErrClosed          = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("file is already being watched")
	ErrNotWatching     = errors.New("file is not being watched")
)

// Op is a set of file operations.
type Op uint32

// Operations.
const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

func (op Op) String() string {
	var s string
	for _, n := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// Event is a debounced change to a watched file.
type Event struct {
	// Path is the absolute path of the file.
	Path string

	// Op combines every operation seen during the debounce window.
	Op Op

	Time time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger for dropped events and watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher watches files for changes.
type Watcher struct {
	fsw    *fsnotify.Watcher
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]int
	pending map[string]*pending
	closed  bool

	events  chan Event
	errors  chan error
	closeCh chan struct{}
	wg      sync.WaitGroup
}

type pending struct {
	op    Op
	timer *time.Timer
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		delay:   DefaultDelay,
		logger:  slog.Default(),
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
		pending: make(map[string]*pending),
		events:  make(chan Event, 16),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Add starts watching the file at path. The file need not exist yet, but
// its directory must.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.files[abs] {
		return ErrAlreadyWatching
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Remove stops watching the file at path.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if !w.files[abs] {
		return ErrNotWatching
	}
	delete(w.files, abs)
	if p, ok := w.pending[abs]; ok {
		p.timer.Stop()
		delete(w.pending, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// Files returns the watched files.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	return files
}

// Events returns the channel of debounced events. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. Pending events are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	err := w.fsw.Close()

	close(w.events)
	close(w.errors)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.files[path] {
		return
	}
	if p, ok := w.pending[path]; ok {
		p.op |= op
		p.timer.Reset(w.delay)
		return
	}
	w.pending[path] = &pending{
		op:    op,
		timer: time.AfterFunc(w.delay, func() { w.fire(path) }),
	}
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[path]
	if !ok || w.closed {
		return
	}
	delete(w.pending, path)

	select {
	case w.events <- Event{Path: path, Op: p.op, Time: time.Now()}:
	default:
		w.logger.Warn("event channel full, dropping event", "path", path)
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}
