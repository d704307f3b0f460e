// Package script defines tree plugins written in Lua.
//
// A script plugin is a directory with a plugin.yaml manifest and an entry
// file, or a single .lua file. Register discovers plugins and defines each
// into the tree plugin registry under its name, so trees request them like
// any built-in plugin.
//
// Scripts reach the tree through require("tree"):
//
//	local tree = require("tree")
//	tree.on("open", function(e) tree.log("info", "opened", "id", e.id) end)
//
// A script may define setup(settings), called once per tree with the
// requested settings merged over the manifest defaults. Other global
// functions can be called from Go with Host.Call.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/tree"
)

// Register discovers the script plugins under paths and defines them. It
// returns the names defined. Plugins that fail to load or collide with an
// existing definition are reported in the joined error; the others are
// still defined.
func Register(paths []string, opts ...HostOption) ([]string, error) {
	infos, err := NewLoader(paths...).Discover()
	errs := []error{err}

	var names []string
	for _, info := range infos {
		if info.Err != nil {
			errs = append(errs, fmt.Errorf("script plugin %s: %w", info.Name, info.Err))
			continue
		}
		if err := tree.Define(info.Name, Factory(info.Manifest, opts...)); err != nil {
			errs = append(errs, fmt.Errorf("script plugin %s: %w", info.Name, err))
			continue
		}
		names = append(names, info.Name)
	}
	return names, errors.Join(errs...)
}

// Factory returns the plugin factory of m. The capability it produces is the
// script's *Host, released when the tree shuts down.
func Factory(m *Manifest, opts ...HostOption) plugin.Factory[*tree.Tree] {
	return func(t *tree.Tree, settings plugin.Settings) (any, error) {
		for _, dep := range m.Requires {
			if _, err := t.Require(dep); err != nil {
				return nil, fmt.Errorf("require %s: %w", dep, err)
			}
		}

		h, err := NewHost(t, m, opts...)
		if err != nil {
			return nil, err
		}
		ctx := context.Background()
		if err := h.Load(ctx); err != nil {
			_ = h.Close()
			return nil, err
		}
		if err := h.Setup(ctx, settings.Merge(m.Settings)); err != nil {
			_ = h.Close()
			return nil, err
		}
		t.AddCleanup(func() { _ = h.Close() })

		t.Logger().Debug("script plugin loaded", "plugin", m.Name, "version", m.Version)
		return h, nil
	}
}
