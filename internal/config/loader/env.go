package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvLoader loads configuration from prefixed environment variables.
// ARBOR_FETCH_TIMEOUT becomes the key fetch_timeout.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	environ func() []string
}

// NewEnvLoader creates a loader for variables starting with prefix. The
// prefix includes its trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: make(map[string]string),
		environ: os.Environ,
	}
}

// AddMapping reads the variable env into key instead of the derived key.
func (l *EnvLoader) AddMapping(env, key string) {
	l.mapping[env] = key
}

// Load returns the values of the prefixed variables. Empty values are kept.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key, mapped := l.mapping[name]; mapped {
			config[key] = parseValue(value)
			continue
		}
		if !strings.HasPrefix(name, l.prefix) || len(name) == len(l.prefix) {
			continue
		}
		config[l.envToKey(name)] = parseValue(value)
	}
	return config, nil
}

func (l *EnvLoader) envToKey(env string) string {
	return strings.ToLower(strings.TrimPrefix(env, l.prefix))
}

// parseValue converts a variable into the most specific type it reads as.
func parseValue(s string) any {
	if s == "" {
		return s
	}

	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
