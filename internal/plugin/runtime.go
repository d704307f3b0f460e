package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/arbor/internal/goroutineid"
)

// Empty is stored for plugins whose factory returned no capability.
type Empty struct{}

// pending is a load in progress. owner is the goroutine running the factory.
type pending struct {
	owner int64
	done  chan struct{}
	v     any
	err   error
}

// Runtime tracks the plugins initialized for one host. Plugins are loaded
// lazily and at most once; Require returns the memoized capability.
type Runtime[H any] struct {
	registry *Registry[H]
	host     H
	logger   *slog.Logger

	mu       sync.Mutex
	names    []string
	settings map[string]Settings
	loading  map[string]*pending
	waiting  map[int64]string
	loaded   map[string]any
	data     *Data
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	logger *slog.Logger
}

// WithRuntimeLogger sets the runtime logger.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(c *runtimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRuntime creates a runtime that loads definitions from reg for host.
func NewRuntime[H any](reg *Registry[H], host H, opts ...RuntimeOption) *Runtime[H] {
	config := runtimeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&config)
	}
	return &Runtime[H]{
		registry: reg,
		host:     host,
		logger:   config.logger,
		settings: make(map[string]Settings),
		loading:  make(map[string]*pending),
		waiting:  make(map[int64]string),
		loaded:   make(map[string]any),
		data:     newData(),
	}
}

// Initialize records the settings of every requested plugin, then requires
// each in request order. It stops at the first failure; plugins queued after
// the failing one are not loaded.
func (rt *Runtime[H]) Initialize(req Request) error {
	if req == nil {
		return nil
	}
	queue, settings, err := req.normalize()
	if err != nil {
		return err
	}

	rt.mu.Lock()
	for name, s := range settings {
		rt.settings[name] = s
	}
	rt.mu.Unlock()

	for _, name := range queue {
		if _, err := rt.Require(name); err != nil {
			return err
		}
	}
	return nil
}

// Require returns the capability of name, loading the plugin on first use.
// A caller that finds name loading on another goroutine waits for that load
// and shares its result. Requiring a plugin from within its own load chain
// fails with ErrCircularDependency. A factory must require its dependencies
// on its own goroutine; a cycle through a goroutine it starts and waits for
// is not detected.
func (rt *Runtime[H]) Require(name string) (any, error) {
	me := goroutineid.Get()

	rt.mu.Lock()
	if v, ok := rt.loaded[name]; ok {
		rt.mu.Unlock()
		return v, nil
	}
	if p, ok := rt.loading[name]; ok {
		if rt.waitsOnLocked(me, name) {
			rt.mu.Unlock()
			return nil, &LoadError{Plugin: name, Err: ErrCircularDependency}
		}
		rt.waiting[me] = name
		rt.mu.Unlock()

		<-p.done

		rt.mu.Lock()
		delete(rt.waiting, me)
		rt.mu.Unlock()
		return p.v, p.err
	}
	p := &pending{owner: me, done: make(chan struct{})}
	rt.loading[name] = p
	rt.mu.Unlock()

	p.v, p.err = rt.load(name)

	rt.mu.Lock()
	delete(rt.loading, name)
	rt.mu.Unlock()
	close(p.done)
	return p.v, p.err
}

// waitsOnLocked reports whether waiting for name would wait on goroutine me,
// following the loads each owner is itself waiting for. An unreadable
// goroutine id counts as the owner.
func (rt *Runtime[H]) waitsOnLocked(me int64, name string) bool {
	for range len(rt.loading) {
		p, ok := rt.loading[name]
		if !ok {
			return false
		}
		if p.owner == me || me == 0 {
			return true
		}
		next, ok := rt.waiting[p.owner]
		if !ok {
			return false
		}
		name = next
	}
	return true
}

func (rt *Runtime[H]) load(name string) (any, error) {
	def, ok := rt.registry.Lookup(name)
	if !ok {
		return nil, &LoadError{Plugin: name, Err: ErrPluginNotDefined}
	}

	rt.mu.Lock()
	settings := rt.settings[name]
	rt.mu.Unlock()
	if settings == nil {
		settings = Settings{}
	}

	v, err := def.Factory(rt.host, settings)
	if err != nil {
		return nil, &LoadError{Plugin: name, Err: err}
	}
	if v == nil {
		v = Empty{}
	}

	rt.mu.Lock()
	rt.loaded[name] = v
	rt.names = append(rt.names, name)
	rt.mu.Unlock()

	rt.logger.Debug("plugin loaded", "plugin", name)
	return v, nil
}

// Loaded returns the memoized capability of name without loading it.
func (rt *Runtime[H]) Loaded(name string) (any, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	v, ok := rt.loaded[name]
	return v, ok
}

// State returns the lifecycle state of name.
func (rt *Runtime[H]) State(name string) State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.loaded[name]; ok {
		return StateLoaded
	}
	if _, ok := rt.loading[name]; ok {
		return StateLoading
	}
	return StateUnrequested
}

// Names returns the loaded plugins in load order.
func (rt *Runtime[H]) Names() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.names...)
}

// Settings returns the settings name was requested with.
func (rt *Runtime[H]) Settings(name string) Settings {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.settings[name]
}

// Data returns the scratch area shared by the runtime's plugins.
func (rt *Runtime[H]) Data() *Data {
	return rt.data
}

// Host returns the host the runtime passes to factories.
func (rt *Runtime[H]) Host() H {
	return rt.host
}

// As requires name and asserts its capability to T.
func As[T any, H any](rt *Runtime[H], name string) (T, error) {
	var zero T
	v, err := rt.Require(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T", ErrCapabilityType, name, v)
	}
	return t, nil
}
