package loader

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dshills/arbor/internal/plugin"
)

// YAMLLoader loads configuration from a YAML file.
//
// A plugins mapping keeps its document order: the loader returns it as a
// plugin.Request instead of an unordered map.
type YAMLLoader struct {
	fs   FileSystem
	path string
}

// NewYAMLLoader creates a YAML loader for path.
func NewYAMLLoader(path string) *YAMLLoader {
	return NewYAMLLoaderWithFS(DefaultFS(), path)
}

// NewYAMLLoaderWithFS creates a YAML loader that reads through fsys.
func NewYAMLLoaderWithFS(fsys FileSystem, path string) *YAMLLoader {
	return &YAMLLoader{fs: fsys, path: path}
}

// Load reads the configured file.
func (l *YAMLLoader) Load() (map[string]any, error) {
	data, err := readFile(l.fs, l.path)
	if err != nil || data == nil {
		return nil, err
	}
	return parseYAML(l.path, data)
}

// LoadFromReader reads YAML from r.
func (l *YAMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parseYAML("<reader>", data)
}

func parseYAML(source string, data []byte) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	config := make(map[string]any)
	if len(doc.Content) == 0 {
		return config, nil
	}

	root := doc.Content[0]
	if err := root.Decode(&config); err != nil {
		return nil, &ParseError{Path: source, Line: root.Line, Column: root.Column, Message: err.Error(), Err: err}
	}

	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, value := root.Content[i], root.Content[i+1]
			if key.Value != "plugins" || value.Kind != yaml.MappingNode {
				continue
			}
			req, err := plugin.RequestFromYAML(value)
			if err != nil {
				return nil, &ParseError{Path: source, Line: value.Line, Column: value.Column, Message: err.Error(), Err: err}
			}
			config["plugins"] = req
		}
	}
	return config, nil
}
