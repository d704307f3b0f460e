package tree

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/arbor/internal/dom"
	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/handler"
	"github.com/dshills/arbor/internal/identity"
	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/schema"
)

// registry holds every plugin definition in the process. Plugin packages
// define themselves from init, before any tree is constructed.
var registry = plugin.NewRegistry[*Tree]()

// Define registers a plugin factory under name for every tree.
func Define(name string, fn plugin.Factory[*Tree]) error {
	return registry.Define(name, fn)
}

// MustDefine is Define that panics on error, for use in init functions.
func MustDefine(name string, fn plugin.Factory[*Tree]) {
	if err := Define(name, fn); err != nil {
		panic(err)
	}
}

// Definitions returns the names of every defined plugin.
func Definitions() []string {
	return registry.Names()
}

// Tree is a navigable tree built over a <ul> element.
//
// Tree methods are safe for concurrent use. Events are dispatched after the
// tree lock is released, so listeners may call back into the tree.
type Tree struct {
	cfg      config
	root     *html.Node
	bus      *event.Bus
	plugins  *plugin.Runtime[*Tree]
	ids      *identity.Set
	attrs    *schema.Validator
	handlers *handler.Dispatcher
	fetcher  Fetcher
	logger   *slog.Logger

	mu       sync.Mutex
	nodes    map[string]*node
	selected string

	flights  singleflight.Group
	loads    sync.WaitGroup
	errMu    sync.Mutex
	loadErrs []error

	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	ready    atomic.Bool
	cleanMu  sync.Mutex
	cleanups []func()
}

// node is the tree's record for one <li>.
type node struct {
	id      string
	label   string
	li      *html.Node
	anchor  *html.Node
	list    *html.Node
	open    bool
	loading bool
	fetch   string
	payload *Payload
	attrs   map[string]string
	loader  *html.Node
}

func (n *node) parent() bool {
	return n.list != nil
}

// New builds a tree over root, which must be a <ul>, initializes the
// requested plugins and publishes the initialize event.
func New(root *html.Node, opts ...Option) (*Tree, error) {
	if !dom.IsElement(root, atom.Ul) {
		return nil, ErrNotList
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tree{
		cfg:    cfg,
		root:   root,
		bus:    event.NewBus(event.WithNames(lifecycle...), event.WithLogger(cfg.logger)),
		ids:    identity.NewSet(),
		attrs:  schema.NewValidator(schema.NodeAttributes, cfg.logger),
		logger: cfg.logger,
		nodes:  make(map[string]*node),
		ctx:    ctx,
		cancel: cancel,
	}
	t.handlers = handler.NewDispatcher(cfg.handlers,
		handler.WithExpressions(cfg.expressions),
		handler.WithLogger(cfg.logger))
	t.fetcher = cfg.fetcher
	if t.fetcher == nil {
		t.fetcher = &HTTPFetcher{}
	}
	t.plugins = plugin.NewRuntime(registry, t, plugin.WithRuntimeLogger(cfg.logger))

	dom.AddClass(root, classTree)

	t.mu.Lock()
	items, _ := dom.QueryAll(root, "li")
	_, err := t.buildLocked(items)
	t.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	if err := t.plugins.Initialize(cfg.plugins); err != nil {
		t.Shutdown()
		return nil, fmt.Errorf("initialize plugins: %w", err)
	}

	t.ready.Store(true)
	emit(context.Background(), t, Initialized, InitializeEvent{Tree: t})

	t.mu.Lock()
	pending := t.pendingLoadsLocked(t.allIDsLocked())
	t.mu.Unlock()
	t.launch(context.Background(), pending)

	t.logger.Debug("tree built", "nodes", len(t.nodes), "plugins", t.plugins.Names())
	return t, nil
}

// FromDocument builds a tree over the <ul> with id elementID in doc. An empty
// elementID selects the first <ul>.
func FromDocument(doc *html.Node, elementID string, opts ...Option) (*Tree, error) {
	var (
		root *html.Node
		err  error
	)
	if elementID == "" {
		root, err = dom.Query(doc, "ul")
	} else {
		root, err = dom.ByID(doc, elementID)
	}
	if err != nil {
		return nil, err
	}
	if !dom.IsElement(root, atom.Ul) {
		return nil, fmt.Errorf("%w: #%s is <%s>", ErrNotList, elementID, root.Data)
	}
	return New(root, opts...)
}

// Parse reads an HTML document and builds a tree as FromDocument does.
func Parse(r io.Reader, elementID string, opts ...Option) (*Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return FromDocument(doc, elementID, opts...)
}

// Shutdown stops background loads, waits for them to settle and removes
// every event listener. Other methods return ErrClosed afterwards.
func (t *Tree) Shutdown() error {
	t.mu.Lock()
	if t.closed.Swap(true) {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.cancel()
	t.loads.Wait()
	t.bus.Reset()

	t.cleanMu.Lock()
	cleanups := t.cleanups
	t.cleanups = nil
	t.cleanMu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	return nil
}

// IsInitialized reports whether the tree has published initialize. Plugins
// loaded after construction use it in place of an initialize listener.
func (t *Tree) IsInitialized() bool {
	return t.ready.Load()
}

// AddCleanup registers fn to run on Shutdown, after pending loads have
// settled. Cleanups run in reverse order of registration.
func (t *Tree) AddCleanup(fn func()) {
	t.cleanMu.Lock()
	defer t.cleanMu.Unlock()
	t.cleanups = append(t.cleanups, fn)
}

// Events returns the tree's event bus.
func (t *Tree) Events() *event.Bus {
	return t.bus
}

// On subscribes h to the event name.
func (t *Tree) On(name event.Name, h event.Handler, opts ...event.SubscriptionOption) (event.Subscription, error) {
	return t.bus.On(name, h, opts...)
}

// Once subscribes h to the next occurrence of name.
func (t *Tree) Once(name event.Name, h event.Handler, opts ...event.SubscriptionOption) (event.Subscription, error) {
	return t.bus.Once(name, h, opts...)
}

// Off removes a subscription.
func (t *Tree) Off(name event.Name, sub event.Subscription) error {
	return t.bus.Off(name, sub)
}

// Trigger publishes payload under name.
func (t *Tree) Trigger(ctx context.Context, name event.Name, payload any) error {
	return t.bus.Trigger(ctx, name, payload)
}

// Plugins returns the tree's plugin runtime.
func (t *Tree) Plugins() *plugin.Runtime[*Tree] {
	return t.plugins
}

// Require returns the capability of the plugin name, loading it if needed.
func (t *Tree) Require(name string) (any, error) {
	return t.plugins.Require(name)
}

// Logger returns the tree logger.
func (t *Tree) Logger() *slog.Logger {
	return t.logger
}

// Prefix returns the attribute prefix of node declarations.
func (t *Tree) Prefix() string {
	return t.cfg.prefix
}

// Handlers returns the registry that resolves onselect declarations.
func (t *Tree) Handlers() *handler.Registry {
	return t.handlers.Registry()
}

// emit publishes a typed event. Listener failures are logged by the bus and
// do not fail the operation that published the event.
func emit[P any](ctx context.Context, t *Tree, k event.Key[P], payload P) {
	_ = event.Trigger(ctx, t.bus, k, payload)
}
