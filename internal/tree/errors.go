package tree

import (
	"errors"
	"fmt"
)

// Tree errors.
var (
	// ErrNodeNotFound is returned when an id matches no node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotParent is returned when an open/close operation targets a leaf.
	ErrNotParent = errors.New("node is not a parent")

	// ErrNotList is returned when a tree root is not a <ul> element.
	ErrNotList = errors.New("tree root must be a ul element")

	// ErrEmptyURI is returned when loading children without a source.
	ErrEmptyURI = errors.New("fetch uri is empty")

	// ErrUnsupportedContent is returned for responses that are neither JSON nor HTML.
	ErrUnsupportedContent = errors.New("unsupported response content type")

	// ErrNodeRemoved is returned when a load completes for a node removed meanwhile.
	ErrNodeRemoved = errors.New("node was removed during load")

	// ErrClosed is returned by operations on a closed tree.
	ErrClosed = errors.New("tree is closed")

	// ErrEmptyLabel is returned when creating or renaming with a blank label.
	ErrEmptyLabel = errors.New("label is empty")
)

// FetchError reports a failed subtree load.
type FetchError struct {
	ID     string
	URI    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load children of %q from %s: status %d: %v", e.ID, e.URI, e.Status, e.Err)
	}
	return fmt.Sprintf("load children of %q from %s: %v", e.ID, e.URI, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
