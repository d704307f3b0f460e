package config

import "errors"

// ErrInvalidPlugins is returned when the plugins key cannot be read as a
// plugin request. Unlike other keys it fails the load, since the tree could
// not be built with the plugins the file asks for.
var ErrInvalidPlugins = errors.New("invalid plugin request")
