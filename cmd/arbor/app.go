package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/arbor/internal/browse"
	"github.com/dshills/arbor/internal/config"
	"github.com/dshills/arbor/internal/handler"
	"github.com/dshills/arbor/internal/plugins/script"
	"github.com/dshills/arbor/internal/tree"
	"github.com/dshills/arbor/internal/watch"
)

// app runs one invocation of the command.
type app struct {
	opts   options
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

// registerScripts defines the script plugins found on the plugin paths.
// Broken plugins are logged and skipped.
func (a *app) registerScripts() {
	paths := a.cfg.PluginPaths
	if len(paths) == 0 {
		paths = script.DefaultPaths()
	}
	names, err := script.Register(paths)
	if err != nil {
		a.logger.Warn("script plugins", "error", err)
	}
	if len(names) > 0 {
		a.logger.Debug("script plugins defined", "names", names)
	}
}

// handlers are the select handlers nodes may name in their onselect
// attribute.
func (a *app) handlers() *handler.Registry {
	r := handler.NewRegistry()
	_ = r.Register("log", func(_ context.Context, sel handler.Selection) error {
		a.logger.Info("selected", "id", sel.ID, "label", sel.Label)
		return nil
	})
	return r
}

// build reads the document and builds the tree with the requested nodes
// open. It waits for the loads started by opening them.
func (a *app) build(ctx context.Context) (*tree.Tree, error) {
	f, err := os.Open(a.opts.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	opts := append(a.cfg.TreeOptions(),
		tree.WithLogger(a.logger),
		tree.WithHandlers(a.handlers()),
	)
	t, err := tree.Parse(f, a.cfg.ElementID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.opts.File, err)
	}

	for _, id := range a.opts.Open {
		if err := t.Open(ctx, id); err != nil {
			_ = t.Shutdown()
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
	}
	if err := t.Wait(); err != nil {
		a.logger.Warn("subtree loads failed", "error", err)
	}
	return t, nil
}

// write renders t to the output.
func (a *app) write(t *tree.Tree) error {
	if a.opts.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(t.ToJSON())
	}
	markup, err := t.Render()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, markup)
	return err
}

func (a *app) renderOnce(ctx context.Context) error {
	t, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown()
	return a.write(t)
}

func (a *app) browse(ctx context.Context) error {
	t, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create terminal: %w", err)
	}
	return browse.New(t, screen, browse.WithLogger(a.logger)).Run(ctx)
}

// watch writes the tree, then writes it again whenever the document or the
// configuration file changes, until ctx is done. Build failures while
// watching are logged and the previous output stands.
func (a *app) watch(ctx context.Context) error {
	if err := a.renderOnce(ctx); err != nil {
		return err
	}

	w, err := watch.New(watch.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(a.opts.File); err != nil {
		return fmt.Errorf("watch %s: %w", a.opts.File, err)
	}
	if a.opts.ConfigPath != "" {
		if err := w.Add(a.opts.ConfigPath); err != nil {
			return fmt.Errorf("watch %s: %w", a.opts.ConfigPath, err)
		}
	}
	a.logger.Info("watching", "files", w.Files())

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", "error", err)
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			a.logger.Debug("changed", "path", ev.Path, "op", ev.Op)
			if ev.Op.Has(watch.OpRemove) || ev.Op.Has(watch.OpRename) {
				if _, err := os.Stat(ev.Path); errors.Is(err, os.ErrNotExist) {
					continue
				}
			}
			if err := a.reload(); err != nil {
				a.logger.Error("reload configuration", "error", err)
				continue
			}
			if err := a.renderOnce(ctx); err != nil {
				a.logger.Error("rebuild", "error", err)
			}
		}
	}
}

// reload rereads the configuration file, keeping the flag overrides.
func (a *app) reload() error {
	if a.opts.ConfigPath == "" {
		return nil
	}
	cfg, err := loadConfig(a.opts, a.logger)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
