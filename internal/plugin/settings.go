package plugin

import (
	"maps"
	"sync"
	"time"
)

// Settings holds the options a plugin was requested with.
type Settings map[string]any

// Merge returns a copy of defaults overlaid with s. Nested maps are merged
// recursively; any other value in s replaces the default.
func (s Settings) Merge(defaults Settings) Settings {
	out := clone(map[string]any(defaults))
	return Settings(deepMerge(out, clone(map[string]any(s))))
}

// Has reports whether key is set.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns the string at key, or def.
func (s Settings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the boolean at key, or def.
func (s Settings) Bool(key string, def bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the integer at key, or def. Decoders produce several integer
// and float types; all are accepted.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Duration returns the duration at key, or def. Strings are parsed with
// time.ParseDuration.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Map returns the nested settings at key, or nil.
func (s Settings) Map(key string) Settings {
	switch v := s[key].(type) {
	case Settings:
		return v
	case map[string]any:
		return Settings(v)
	default:
		return nil
	}
}

func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}
		srcMap, srcIsMap := asMap(srcVal)
		dstMap, dstIsMap := asMap(dstVal)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}
	return dst
}

func clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, val := range src {
		switch v := val.(type) {
		case map[string]any:
			dst[key] = clone(v)
		case Settings:
			dst[key] = clone(v)
		case []any:
			dst[key] = append([]any(nil), v...)
		default:
			dst[key] = val
		}
	}
	return dst
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Settings:
		return m, true
	default:
		return nil, false
	}
}

// Data is a scratch area shared by every plugin of one runtime.
type Data struct {
	mu sync.RWMutex
	m  map[string]any
}

func newData() *Data {
	return &Data{m: make(map[string]any)}
}

// Get returns the value stored at key.
func (d *Data) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[key]
	return v, ok
}

// Set stores value at key.
func (d *Data) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key] = value
}

// Delete removes key.
func (d *Data) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, key)
}

// Snapshot returns a shallow copy of the stored values.
func (d *Data) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.m)
}
