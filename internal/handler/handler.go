// Package handler resolves the select handlers declared on tree nodes.
//
// A node declares its handler by name. Names resolve through a Registry of
// Go callbacks supplied by the host application. Hosts that want inline
// logic can enable expressions, which are evaluated in the expr-lang
// sandbox; arbitrary code is never executed.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Handler errors.
var (
	// ErrUnknownHandler is returned when a name matches no registered callback.
	ErrUnknownHandler = errors.New("unknown select handler")

	// ErrAlreadyRegistered is returned when registering a name twice.
	ErrAlreadyRegistered = errors.New("handler already registered")

	// ErrNilFunc is returned when registering a nil callback.
	ErrNilFunc = errors.New("handler func is nil")
)

// Selection describes the node a handler runs for.
type Selection struct {
	ID         string
	Label      string
	Attributes map[string]string
}

// Func is a select callback.
type Func func(ctx context.Context, sel Selection) error

// Registry maps handler names to callbacks.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a callback under name.
func (r *Registry) Register(name string, fn Func) error {
	if fn == nil {
		return ErrNilFunc
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the callback for name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatcher runs handler declarations.
type Dispatcher struct {
	registry    *Registry
	expressions bool
	logger      *slog.Logger
	programs    sync.Map
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithExpressions enables expr-lang evaluation of declarations that are not
// registered names.
func WithExpressions(enabled bool) Option {
	return func(d *Dispatcher) {
		d.expressions = enabled
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over r. A nil registry behaves as an
// empty one.
func NewDispatcher(r *Registry, opts ...Option) *Dispatcher {
	if r == nil {
		r = NewRegistry()
	}
	d := &Dispatcher{registry: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the callback registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Run executes the handler declared by source for sel. An empty declaration
// does nothing.
func (d *Dispatcher) Run(ctx context.Context, source string, sel Selection) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}

	if fn, ok := d.registry.Lookup(source); ok {
		return fn(ctx, sel)
	}
	if !d.expressions {
		return fmt.Errorf("%w: %q", ErrUnknownHandler, source)
	}
	return d.eval(ctx, source, sel)
}

func (d *Dispatcher) eval(ctx context.Context, source string, sel Selection) error {
	var callErr error
	env := map[string]any{
		"id":    sel.ID,
		"label": sel.Label,
		"attrs": sel.Attributes,
		"call": func(name string) bool {
			fn, ok := d.registry.Lookup(name)
			if !ok {
				callErr = errors.Join(callErr, fmt.Errorf("%w: %q", ErrUnknownHandler, name))
				return false
			}
			if err := fn(ctx, sel); err != nil {
				callErr = errors.Join(callErr, err)
				return false
			}
			return true
		},
	}

	program, err := d.compile(source, env)
	if err != nil {
		return err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("handler expression %q: %w", source, err)
	}
	d.logger.Debug("handler expression evaluated", "expr", source, "node", sel.ID, "result", out)
	return callErr
}

func (d *Dispatcher) compile(source string, env map[string]any) (*vm.Program, error) {
	if p, ok := d.programs.Load(source); ok {
		return p.(*vm.Program), nil
	}
	p, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("handler expression %q: %w", source, err)
	}
	d.programs.Store(source, p)
	return p, nil
}
