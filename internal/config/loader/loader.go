// Package loader reads raw configuration maps from TOML and YAML files and
// from environment variables.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for a file extension no loader handles.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Loader reads a configuration source into a map.
type Loader interface {
	// Load returns nil, nil when the source does not exist.
	Load() (map[string]any, error)
}

// FileSystem is the file access a file loader needs.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the operating system.
type OSFS struct{}

// ReadFile reads the file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the operating system file system.
func DefaultFS() FileSystem {
	return OSFS{}
}

// ForPath returns the loader for path, chosen by its extension.
func ForPath(fsys FileSystem, path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return NewTOMLLoaderWithFS(fsys, path), nil
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fsys, path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// readFile returns nil, nil for a missing file.
func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}

// ParseError reports a configuration file that could not be decoded.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
