// Package schema validates prefix-scoped node attributes and option keys
// against a whitelist.
//
// Validation never stops tree construction: problems are logged as warnings
// and returned to the caller, who decides whether to act on them.
package schema

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Type is the expected type of a whitelisted value.
type Type string

// Value types.
const (
	TypeAny      Type = ""
	TypeString   Type = "string"
	TypeBoolean  Type = "boolean"
	TypeURL      Type = "url"
	TypeHandler  Type = "handler"
	TypeDuration Type = "duration"
	TypeList     Type = "list"
	TypeTable    Type = "table"
)

// Entry describes one accepted key.
type Entry struct {
	Name        string
	Type        Type
	Description string
}

// Whitelist is the set of accepted keys.
type Whitelist []Entry

// Lookup returns the entry for name.
func (w Whitelist) Lookup(name string) (Entry, bool) {
	for _, e := range w {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Names returns the accepted keys.
func (w Whitelist) Names() []string {
	names := make([]string, len(w))
	for i, e := range w {
		names[i] = e.Name
	}
	return names
}

// NodeAttributes is the whitelist of node declaration attributes, without
// their prefix.
var NodeAttributes = Whitelist{
	{Name: "name", Type: TypeString, Description: "explicit node identifier"},
	{Name: "id", Type: TypeString, Description: "explicit node identifier (set on build)"},
	{Name: "open", Type: TypeBoolean, Description: "node starts open"},
	{Name: "fetch-url", Type: TypeURL, Description: "source of lazily loaded children"},
	{Name: "onselect", Type: TypeHandler, Description: "handler run when the node is selected"},
	{Name: "open-child", Type: TypeBoolean, Description: "descendant parents start open"},
}

// Validator checks values against a whitelist.
type Validator struct {
	whitelist Whitelist
	logger    *slog.Logger
}

// NewValidator creates a validator for w. A nil logger uses slog.Default.
func NewValidator(w Whitelist, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{whitelist: w, logger: logger}
}

// Whitelist returns the accepted keys.
func (v *Validator) Whitelist() Whitelist {
	return v.whitelist
}

// Validate checks every key of values. Unknown keys and type mismatches are
// logged as warnings and returned; nil means everything was accepted.
func (v *Validator) Validate(path string, values map[string]any) *ValidationErrors {
	errs := &ValidationErrors{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		entry, ok := v.whitelist.Lookup(key)
		if !ok {
			errs.Add(path, key, "unknown key", value)
			continue
		}
		if msg := checkType(entry.Type, value); msg != "" {
			errs.Add(path, key, msg, value)
		}
	}

	for _, e := range errs.Errors {
		v.logger.Warn("validation warning", "path", e.Path, "key", e.Key, "problem", e.Message)
	}

	if !errs.HasErrors() {
		return nil
	}
	return errs
}

// ValidateAttributes is Validate for string-valued attributes.
func (v *Validator) ValidateAttributes(path string, attrs map[string]string) *ValidationErrors {
	values := make(map[string]any, len(attrs))
	for k, val := range attrs {
		values[k] = val
	}
	return v.Validate(path, values)
}

func checkType(t Type, value any) string {
	switch t {
	case TypeAny:
		return ""
	case TypeString, TypeHandler:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected %s, got %T", t, value)
		}
		if t == TypeHandler && strings.TrimSpace(s) == "" {
			return "handler name is empty"
		}
	case TypeBoolean:
		switch val := value.(type) {
		case bool:
		case string:
			if val != "" && val != "true" && val != "false" {
				return fmt.Sprintf("expected boolean, got %q", val)
			}
		default:
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	case TypeURL:
		s, ok := value.(string)
		if !ok || s == "" {
			return "expected a URL"
		}
		if _, err := url.Parse(s); err != nil {
			return fmt.Sprintf("invalid URL: %v", err)
		}
	case TypeDuration:
		switch val := value.(type) {
		case time.Duration, int64, int:
		case string:
			if _, err := time.ParseDuration(val); err != nil {
				return fmt.Sprintf("invalid duration %q", val)
			}
		default:
			return fmt.Sprintf("expected duration, got %T", value)
		}
	case TypeList:
		switch value.(type) {
		case []any, []string, []map[string]any:
		default:
			return fmt.Sprintf("expected list, got %T", value)
		}
	case TypeTable:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected table, got %T", value)
		}
	}
	return ""
}
