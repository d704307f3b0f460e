package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrAlreadyDefined is returned when a name is defined twice in a registry.
	ErrAlreadyDefined = errors.New("plugin already defined")

	// ErrPluginNotDefined is returned when a requested plugin has no definition.
	ErrPluginNotDefined = errors.New("plugin not defined")

	// ErrCircularDependency is returned when a plugin requires itself, directly or not.
	ErrCircularDependency = errors.New("circular plugin dependency")

	// ErrInvalidName is returned for an empty plugin name.
	ErrInvalidName = errors.New("invalid plugin name")

	// ErrNilFactory is returned when defining a plugin without a factory.
	ErrNilFactory = errors.New("plugin factory is nil")

	// ErrInvalidRequest is returned when a plugin request cannot be normalized.
	ErrInvalidRequest = errors.New("invalid plugin request")

	// ErrCapabilityType is returned by As when a capability has another type.
	ErrCapabilityType = errors.New("plugin capability has unexpected type")
)

// LoadError reports a plugin that failed to load.
type LoadError struct {
	Plugin string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin %q: %v", e.Plugin, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}
