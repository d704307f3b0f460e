package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/plugin"
	plua "github.com/dshills/arbor/internal/plugin/lua"
	"github.com/dshills/arbor/internal/tree"
)

// ErrHostClosed is returned by calls into a closed host.
var ErrHostClosed = errors.New("script host is closed")

// Host runs one script plugin against one tree.
//
// Lua code runs with the interpreter locked. Tree actions that publish events
// (open, close, toggle, select, trigger) are queued while a script runs and
// performed once it returns, so listeners written in the same script can run.
type Host struct {
	manifest *Manifest
	tree     *tree.Tree
	state    *plua.State
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[string]subscription
	queue  []action
	closed bool
}

type subscription struct {
	name event.Name
	sub  event.Subscription
}

type action struct {
	name string
	run  func(ctx context.Context) error
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

type hostConfig struct {
	timeout time.Duration
}

// WithExecutionTimeout bounds each call into the script. Zero disables the
// bound.
func WithExecutionTimeout(d time.Duration) HostOption {
	return func(c *hostConfig) {
		c.timeout = d
	}
}

// NewHost creates the interpreter of m for t and preloads the tree module.
// The entry file is not run until Load.
func NewHost(t *tree.Tree, m *Manifest, opts ...HostOption) (*Host, error) {
	cfg := hostConfig{timeout: plua.DefaultExecutionTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	state, err := plua.NewState(plua.WithExecutionTimeout(cfg.timeout))
	if err != nil {
		return nil, err
	}
	h := &Host{
		manifest: m,
		tree:     t,
		state:    state,
		logger:   t.Logger().With("plugin", m.Name),
		subs:     make(map[string]subscription),
	}
	state.PreloadModule("tree", h.openModule)
	return h, nil
}

// Name returns the plugin name.
func (h *Host) Name() string {
	return h.manifest.Name
}

// Manifest returns the plugin manifest.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Load runs the entry file.
func (h *Host) Load(ctx context.Context) error {
	err := h.state.DoFile(h.manifest.MainPath())
	if err != nil {
		return fmt.Errorf("load %s: %w", h.manifest.MainPath(), err)
	}
	return h.flush(ctx)
}

// Setup calls the script's setup function with settings, if it defines one.
func (h *Host) Setup(ctx context.Context, settings plugin.Settings) error {
	if !h.state.HasFunction("setup") {
		return nil
	}
	_, err := h.Call(ctx, "setup", map[string]any(settings))
	return err
}

// HasFunction reports whether the script defines the global function name.
func (h *Host) HasFunction(name string) bool {
	return h.state.HasFunction(name)
}

// Call calls the global function name and performs the tree actions it
// queued. Results are converted to Go values.
func (h *Host) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	if h.isClosed() {
		return nil, ErrHostClosed
	}
	results, err := h.state.InvokeGlobal(name, args...)
	if err != nil {
		h.drop()
		return nil, fmt.Errorf("%s: call %s: %w", h.Name(), name, err)
	}
	return results, h.flush(ctx)
}

// handler adapts a Lua listener to the event bus. Payloads that implement
// tree.Fielder are passed as tables of their fields.
func (h *Host) handler(fn *lua.LFunction) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, payload any) error {
		if h.isClosed() {
			return nil
		}
		if _, err := h.state.Invoke(fn, fields(payload)); err != nil {
			h.drop()
			return err
		}
		return h.flush(ctx)
	})
}

func fields(payload any) any {
	switch p := payload.(type) {
	case nil:
		return nil
	case tree.Fielder:
		return p.Fields()
	case map[string]any, string, bool, int, int64, float64:
		return p
	default:
		return fmt.Sprint(p)
	}
}

func (h *Host) enqueue(name string, run func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, action{name: name, run: run})
}

// drop discards the actions queued by a call that failed.
func (h *Host) drop() {
	h.mu.Lock()
	h.queue = nil
	h.mu.Unlock()
}

// flush performs the queued actions in order. Actions queued by listeners
// that run meanwhile are flushed by those listeners.
func (h *Host) flush(ctx context.Context) error {
	h.mu.Lock()
	queue := h.queue
	h.queue = nil
	h.mu.Unlock()

	var errs []error
	for _, a := range queue {
		if err := a.run(ctx); err != nil {
			h.logger.Warn("script action failed", "action", a.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Host) track(name event.Name, sub event.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.ID()] = subscription{name: name, sub: sub}
}

func (h *Host) untrack(id string) (subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	return s, ok
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close removes the script's listeners and releases the interpreter.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = nil
	h.queue = nil
	h.mu.Unlock()

	for _, s := range subs {
		// The bus may already be reset by Tree.Shutdown.
		_ = h.tree.Off(s.name, s.sub)
	}
	return h.state.Close()
}
