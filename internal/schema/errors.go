package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	// Path locates the owner of the value, such as a node id or config file.
	Path string

	// Key is the attribute or option name.
	Key string

	// Message describes what's wrong.
	Message string

	// Value is the offending value (may be nil).
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	key := e.Key
	if e.Path != "" {
		key = e.Path + ": " + key
	}
	return fmt.Sprintf("%s: %s", key, e.Message)
}

// ValidationErrors collects multiple validation problems.
type ValidationErrors struct {
	Errors []*ValidationError
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e.Errors), strings.Join(msgs, "\n  - "))
}

// Add adds a validation error.
func (e *ValidationErrors) Add(path, key, message string, value any) {
	e.Errors = append(e.Errors, &ValidationError{
		Path:    path,
		Key:     key,
		Message: message,
		Value:   value,
	})
}

// Merge adds all errors from another ValidationErrors.
func (e *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	e.Errors = append(e.Errors, other.Errors...)
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// ErrorOrNil returns nil when empty, or the ValidationErrors itself.
func (e *ValidationErrors) ErrorOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}
