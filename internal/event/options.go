package event

import "log/slog"

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// names is the closed set of accepted event names. Empty means any name.
	names []Name

	// logger receives listener failures.
	logger *slog.Logger
}

// defaultBusConfig returns the default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger: slog.Default(),
	}
}

// WithNames restricts the bus to the given event names.
func WithNames(names ...Name) BusOption {
	return func(c *busConfig) {
		c.names = append(c.names, names...)
	}
}

// WithLogger sets the logger used to report listener failures.
func WithLogger(l *slog.Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
