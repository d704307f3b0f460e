package config

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/arbor/internal/config/loader"
	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/schema"
	"github.com/dshills/arbor/internal/tree"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "ARBOR_"

// Keys is the whitelist of configuration keys.
var Keys = schema.Whitelist{
	{Name: "prefix", Type: schema.TypeString, Description: "attribute prefix of node declarations"},
	{Name: "element_id", Type: schema.TypeString, Description: "id of the tree list in the document"},
	{Name: "open_on_dbl_click", Type: schema.TypeBoolean, Description: "double click toggles parents"},
	{Name: "allow_expressions", Type: schema.TypeBoolean, Description: "evaluate unregistered onselect values"},
	{Name: "fetch_timeout", Type: schema.TypeDuration, Description: "bound on each subtree load"},
	{Name: "plugins", Type: schema.TypeAny, Description: "plugins to initialize"},
	{Name: "plugin_paths", Type: schema.TypeAny, Description: "directories holding script plugins"},
	{Name: "log_level", Type: schema.TypeString, Description: "debug, info, warn or error"},
}

// Config holds the options of a tree and its host.
type Config struct {
	Prefix           string
	ElementID        string
	OpenOnDblClick   bool
	AllowExpressions bool
	FetchTimeout     time.Duration
	Plugins          plugin.Request
	PluginPaths      []string
	LogLevel         slog.Level

	// Warnings lists the keys that were ignored.
	Warnings *schema.ValidationErrors
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Prefix:       tree.DefaultPrefix,
		FetchTimeout: tree.DefaultFetchTimeout,
		LogLevel:     slog.LevelInfo,
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	fs        loader.FileSystem
	envPrefix string
	env       bool
	logger    *slog.Logger
}

// WithFS reads configuration files through fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithoutEnv skips the environment overlay.
func WithoutEnv() Option {
	return func(o *options) {
		o.env = false
	}
}

// WithLogger sets the logger that receives validation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Load reads the file at path, overlays the environment and returns the
// result over the defaults. An empty path reads the environment only; a
// missing file is not an error.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{
		fs:        loader.DefaultFS(),
		envPrefix: EnvPrefix,
		env:       true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	raw := make(map[string]any)
	if path != "" {
		l, err := loader.ForPath(o.fs, path)
		if err != nil {
			return nil, err
		}
		values, err := l.Load()
		if err != nil {
			return nil, err
		}
		maps.Copy(raw, values)
	}
	if o.env {
		values, err := loader.NewEnvLoader(o.envPrefix).Load()
		if err != nil {
			return nil, err
		}
		// The environment loader guesses types; string keys take the text back.
		for k, v := range values {
			if e, ok := Keys.Lookup(k); ok && e.Type == schema.TypeString {
				if _, isString := v.(string); !isString {
					values[k] = fmt.Sprint(v)
				}
			}
		}
		maps.Copy(raw, values)
	}

	source := path
	if source == "" {
		source = "environment"
	}
	return FromMap(source, raw, o.logger)
}

// FromMap builds a configuration from decoded values. Unknown keys and values
// of the wrong type are logged, recorded in Warnings and ignored. An invalid
// plugin request is an error.
func FromMap(source string, raw map[string]any, logger *slog.Logger) (*Config, error) {
	c := Default()
	c.Warnings = schema.NewValidator(Keys, logger).Validate(source, raw)
	ignored := make(map[string]bool)
	if c.Warnings != nil {
		for _, w := range c.Warnings.Errors {
			ignored[w.Key] = true
		}
	}
	warn := func(key, msg string, value any) {
		if c.Warnings == nil {
			c.Warnings = &schema.ValidationErrors{}
		}
		c.Warnings.Add(source, key, msg, value)
		logger.Warn("validation warning", "path", source, "key", key, "problem", msg)
	}

	for key, value := range raw {
		if ignored[key] {
			continue
		}
		switch key {
		case "prefix":
			c.Prefix = value.(string)
		case "element_id":
			c.ElementID = value.(string)
		case "open_on_dbl_click":
			c.OpenOnDblClick = boolValue(value)
		case "allow_expressions":
			c.AllowExpressions = boolValue(value)
		case "fetch_timeout":
			c.FetchTimeout = durationValue(value)
		case "log_level":
			if err := c.LogLevel.UnmarshalText([]byte(value.(string))); err != nil {
				warn(key, "unknown log level", value)
			}
		case "plugin_paths":
			paths, ok := pathsValue(value)
			if !ok {
				warn(key, fmt.Sprintf("expected a list of paths, got %T", value), value)
				continue
			}
			c.PluginPaths = paths
		case "plugins":
			if s, ok := value.(string); ok {
				value = splitList(s, ",")
			}
			req, err := plugin.RequestFromValue(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: %w", source, ErrInvalidPlugins, err)
			}
			c.Plugins = req
		}
	}
	return c, nil
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "" || b == "true"
	}
	return false
}

// durationValue reads strings with time.ParseDuration and bare integers as
// seconds.
func durationValue(v any) time.Duration {
	switch d := v.(type) {
	case time.Duration:
		return d
	case int64:
		return time.Duration(d) * time.Second
	case int:
		return time.Duration(d) * time.Second
	case string:
		parsed, _ := time.ParseDuration(d)
		return parsed
	}
	return 0
}

// pathsValue accepts a list of strings or a single string in the
// PATH-list format of the platform.
func pathsValue(v any) ([]string, bool) {
	switch p := v.(type) {
	case string:
		return filepath.SplitList(p), true
	case []string:
		return p, true
	case []any:
		out := make([]string, 0, len(p))
		for _, e := range p {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func splitList(s, sep string) []string {
	var out []string
	for part := range strings.SplitSeq(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// TreeOptions translates the configuration into tree options.
func (c *Config) TreeOptions() []tree.Option {
	opts := []tree.Option{
		tree.WithPrefix(c.Prefix),
		tree.WithOpenOnDblClick(c.OpenOnDblClick),
		tree.WithExpressions(c.AllowExpressions),
		tree.WithFetchTimeout(c.FetchTimeout),
	}
	if c.Plugins != nil {
		opts = append(opts, tree.WithPlugins(c.Plugins))
	}
	return opts
}
