package plugin

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Request is the list of plugins a runtime should initialize, with their
// settings. Names, Items and Hash implement it.
type Request interface {
	normalize() ([]string, map[string]Settings, error)
}

// Names requests plugins in order, without settings.
type Names []string

func (n Names) normalize() ([]string, map[string]Settings, error) {
	queue := make([]string, 0, len(n))
	settings := make(map[string]Settings, len(n))
	for _, name := range n {
		if name == "" {
			return nil, nil, ErrInvalidName
		}
		queue = append(queue, name)
		settings[name] = Settings{}
	}
	return queue, settings, nil
}

// Item is one entry of an Items request.
type Item struct {
	Name    string   `yaml:"name" toml:"name"`
	Options Settings `yaml:"options" toml:"options"`
}

// Items requests plugins in order, each with its own settings.
type Items []Item

func (it Items) normalize() ([]string, map[string]Settings, error) {
	queue := make([]string, 0, len(it))
	settings := make(map[string]Settings, len(it))
	for _, item := range it {
		if item.Name == "" {
			return nil, nil, ErrInvalidName
		}
		queue = append(queue, item.Name)
		if item.Options == nil {
			settings[item.Name] = Settings{}
		} else {
			settings[item.Name] = item.Options
		}
	}
	return queue, settings, nil
}

// Hash requests plugins keyed by name. Go maps are unordered, so plugins are
// initialized in sorted name order. Use Items when order matters.
type Hash map[string]Settings

func (h Hash) normalize() ([]string, map[string]Settings, error) {
	queue := make([]string, 0, len(h))
	settings := make(map[string]Settings, len(h))
	for name, opts := range h {
		if name == "" {
			return nil, nil, ErrInvalidName
		}
		queue = append(queue, name)
		if opts == nil {
			opts = Settings{}
		}
		settings[name] = opts
	}
	slices.Sort(queue)
	return queue, settings, nil
}

// RequestFromValue converts a decoded configuration value into a Request.
// It accepts a list of names, a list of {name, options} tables, a mix of the
// two, or a table keyed by plugin name.
func RequestFromValue(v any) (Request, error) {
	switch val := v.(type) {
	case nil:
		return Names(nil), nil
	case Request:
		return val, nil
	case string:
		return Names{val}, nil
	case []string:
		return Names(val), nil
	case []any:
		items := make(Items, 0, len(val))
		for i, entry := range val {
			item, err := itemFromValue(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidRequest, i, err)
			}
			items = append(items, item)
		}
		return items, nil
	case []map[string]any:
		items := make(Items, 0, len(val))
		for i, entry := range val {
			item, err := itemFromValue(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidRequest, i, err)
			}
			items = append(items, item)
		}
		return items, nil
	case map[string]any:
		hash := make(Hash, len(val))
		for name, opts := range val {
			s, ok := asMap(opts)
			if !ok && opts != nil {
				return nil, fmt.Errorf("%w: options of %q must be a table", ErrInvalidRequest, name)
			}
			hash[name] = Settings(s)
		}
		return hash, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidRequest, v)
	}
}

func itemFromValue(v any) (Item, error) {
	switch e := v.(type) {
	case string:
		return Item{Name: e}, nil
	case map[string]any:
		name, _ := e["name"].(string)
		if name == "" {
			return Item{}, ErrInvalidName
		}
		opts, ok := asMap(e["options"])
		if !ok && e["options"] != nil {
			return Item{}, fmt.Errorf("options of %q must be a table", name)
		}
		return Item{Name: name, Options: Settings(opts)}, nil
	default:
		return Item{}, fmt.Errorf("unsupported entry type %T", v)
	}
}

// RequestFromYAML converts a YAML node into a Request. Unlike decoded maps,
// a YAML mapping keeps its document order.
func RequestFromYAML(node *yaml.Node) (Request, error) {
	if node == nil {
		return Names(nil), nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.MappingNode:
		items := make(Items, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var opts map[string]any
			if err := node.Content[i+1].Decode(&opts); err != nil {
				return nil, fmt.Errorf("%w: options of %q: %v", ErrInvalidRequest, node.Content[i].Value, err)
			}
			items = append(items, Item{Name: node.Content[i].Value, Options: Settings(opts)})
		}
		return items, nil
	case yaml.SequenceNode, yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if v == nil {
			return Names(nil), nil
		}
		return RequestFromValue(v)
	default:
		return nil, fmt.Errorf("%w: unsupported YAML node kind %d", ErrInvalidRequest, node.Kind)
	}
}
