// Package main is the entry point for the arbor command.
//
// arbor reads an HTML document holding a nested list, builds a tree over it
// and writes the decorated markup (or its JSON outline) to standard output.
// With -watch it rewrites the output whenever the document or the
// configuration changes; with -browse it opens the tree in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/arbor/internal/config"
	"github.com/dshills/arbor/internal/plugin"

	_ "github.com/dshills/arbor/internal/plugins/checkbox"
	_ "github.com/dshills/arbor/internal/plugins/contextmenu"
	_ "github.com/dshills/arbor/internal/plugins/dialog"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options holds the command line.
type options struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	ElementID  string
	Open       []string
	Plugins    []string
	JSON       bool
	Watch      bool
	Browse     bool
	File       string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger, closeLog, err := newLogger(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	cfg, err := loadConfig(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{opts: opts, cfg: cfg, logger: logger, out: os.Stdout}
	a.registerScripts()

	switch {
	case opts.Browse:
		err = a.browse(ctx)
	case opts.Watch:
		err = a.watch(ctx)
	default:
		err = a.renderOnce(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string) (options, error) {
	var (
		opts        options
		open        string
		plugins     string
		showVersion bool
	)

	fs := flag.NewFlagSet("arbor", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.StringVar(&opts.ElementID, "element", "", "Id of the list to build the tree over")
	fs.StringVar(&open, "open", "", "Comma-separated ids of nodes to open")
	fs.StringVar(&plugins, "plugins", "", "Comma-separated plugins to initialize")
	fs.BoolVar(&opts.JSON, "json", false, "Write the JSON outline instead of HTML")
	fs.BoolVar(&opts.Watch, "watch", false, "Rewrite the output when the file changes")
	fs.BoolVar(&opts.Watch, "w", false, "Watch (shorthand)")
	fs.BoolVar(&opts.Browse, "browse", false, "Browse the tree in the terminal")
	fs.BoolVar(&opts.Browse, "b", false, "Browse (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "arbor - collapsible trees over nested lists\n\n")
		fmt.Fprintf(os.Stderr, "Usage: arbor [options] file.html\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  arbor tree.html                     Write the decorated tree\n")
		fmt.Fprintf(os.Stderr, "  arbor -open docs -json tree.html    Open a node and print the outline\n")
		fmt.Fprintf(os.Stderr, "  arbor -plugins checkbox -b tree.html\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if showVersion {
		fmt.Printf("arbor %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return opts, flag.ErrHelp
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return opts, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.LogLevel)
	}
	if opts.Watch && opts.Browse {
		return opts, fmt.Errorf("-watch and -browse cannot be combined")
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, fmt.Errorf("expected one file, got %d", fs.NArg())
	}
	opts.File = fs.Arg(0)
	opts.Open = splitList(open)
	opts.Plugins = splitList(plugins)
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// levelVar is shared by the handler so the configured level can apply after
// the configuration is loaded.
var levelVar slog.LevelVar

// newLogger writes to stderr, or to the log file. The terminal browser owns
// the screen, so without a log file its logs are discarded.
func newLogger(opts options) (*slog.Logger, func(), error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	switch {
	case opts.LogFile != "":
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case opts.Browse:
		w = io.Discard
	}

	if opts.LogLevel != "" {
		_ = levelVar.UnmarshalText([]byte(opts.LogLevel))
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// loadConfig loads the configuration file and applies the flags over it.
func loadConfig(opts options, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, config.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if opts.LogLevel == "" {
		levelVar.Set(cfg.LogLevel)
	}
	if opts.ElementID != "" {
		cfg.ElementID = opts.ElementID
	}
	if len(opts.Plugins) > 0 {
		cfg.Plugins = plugin.Names(opts.Plugins)
	}
	return cfg, nil
}
