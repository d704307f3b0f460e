package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoEntryPoint is returned for a plugin directory without a manifest,
// init.lua or plugin.lua.
var ErrNoEntryPoint = errors.New("plugin has no entry point")

// Info is a discovered script plugin.
type Info struct {
	Name     string
	Manifest *Manifest
	Err      error
}

// Loader discovers script plugins under a list of directories. A plugin is
// either a directory holding plugin.yaml, init.lua or plugin.lua, or a single
// name.lua file. When two paths provide the same name, the first path wins.
type Loader struct {
	paths      []string
	discovered map[string]*Info
}

// NewLoader creates a loader over paths.
func NewLoader(paths ...string) *Loader {
	return &Loader{
		paths:      paths,
		discovered: make(map[string]*Info),
	}
}

// DefaultPaths returns the user and project plugin directories.
func DefaultPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "arbor", "plugins"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".arbor", "plugins"))
	}
	return paths
}

// Paths returns the search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// Discover scans the search paths and returns the plugins found, sorted by
// name. Missing paths are skipped. Plugins that could not be inspected are
// returned with Err set.
func (l *Loader) Discover() ([]*Info, error) {
	l.discovered = make(map[string]*Info)
	var errs []error
	for _, base := range l.paths {
		if err := l.discoverInPath(base); err != nil {
			errs = append(errs, err)
		}
	}

	infos := make([]*Info, 0, len(l.discovered))
	for _, info := range l.discovered {
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b *Info) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos, errors.Join(errs...)
}

func (l *Loader) discoverInPath(base string) error {
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", base, err)
	}

	for _, entry := range entries {
		path := filepath.Join(base, entry.Name())
		if !entry.IsDir() {
			if filepath.Ext(entry.Name()) == ".lua" {
				name := strings.TrimSuffix(entry.Name(), ".lua")
				l.add(&Info{Name: name, Manifest: newMinimalManifest(name, base, entry.Name())})
			}
			continue
		}
		l.add(inspect(entry.Name(), path))
	}
	return nil
}

func (l *Loader) add(info *Info) {
	if _, ok := l.discovered[info.Name]; ok {
		return
	}
	l.discovered[info.Name] = info
}

// inspect examines a plugin directory.
func inspect(name, dir string) *Info {
	info := &Info{Name: name}

	manifestPath := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifestPath); err == nil {
		m, err := LoadManifest(manifestPath)
		if err != nil {
			info.Err = err
			return info
		}
		info.Name = m.Name
		info.Manifest = m
		return info
	}

	for _, main := range []string{"init.lua", "plugin.lua"} {
		if _, err := os.Stat(filepath.Join(dir, main)); err == nil {
			info.Manifest = newMinimalManifest(name, dir, main)
			return info
		}
	}

	info.Err = ErrNoEntryPoint
	return info
}

// Get returns a discovered plugin by name.
func (l *Loader) Get(name string) (*Info, bool) {
	info, ok := l.discovered[name]
	return info, ok
}
