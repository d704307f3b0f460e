package tree

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dshills/arbor/internal/handler"
	"github.com/dshills/arbor/internal/plugin"
)

// Defaults.
const (
	DefaultPrefix       = "data-treejs-"
	DefaultFetchTimeout = 30 * time.Second
)

// Option configures a Tree.
type Option func(*config)

type config struct {
	prefix         string
	logger         *slog.Logger
	fetcher        Fetcher
	fetchTimeout   time.Duration
	plugins        plugin.Request
	handlers       *handler.Registry
	expressions    bool
	openOnDblClick bool
}

func defaultConfig() config {
	return config{
		prefix:       DefaultPrefix,
		logger:       slog.Default(),
		fetchTimeout: DefaultFetchTimeout,
	}
}

// WithPrefix sets the attribute prefix of node declarations.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger shared by the tree, its bus and its plugins.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFetcher sets the transport used to load subtrees.
func WithFetcher(f Fetcher) Option {
	return func(c *config) {
		c.fetcher = f
	}
}

// WithHTTPClient loads subtrees over HTTP with client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.fetcher = &HTTPFetcher{Client: client}
	}
}

// WithFetchTimeout bounds each subtree load. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.fetchTimeout = d
	}
}

// WithPlugins sets the plugins initialized by New.
func WithPlugins(req plugin.Request) Option {
	return func(c *config) {
		c.plugins = req
	}
}

// WithHandlers sets the registry that resolves onselect declarations.
func WithHandlers(r *handler.Registry) Option {
	return func(c *config) {
		c.handlers = r
	}
}

// WithExpressions lets onselect declarations that are not registered names
// be evaluated as sandboxed expressions.
func WithExpressions(enabled bool) Option {
	return func(c *config) {
		c.expressions = enabled
	}
}

// WithOpenOnDblClick makes a single click on a parent select it and a double
// click toggle it.
func WithOpenOnDblClick(enabled bool) Option {
	return func(c *config) {
		c.openOnDblClick = enabled
	}
}
