package tree

import (
	"golang.org/x/net/html"

	"github.com/dshills/arbor/internal/event"
)

// Lifecycle event names.
const (
	EventInitialize event.Name = "initialize"
	EventOpen       event.Name = "open"
	EventClose      event.Name = "close"
	EventSelect     event.Name = "select"
	EventFetch      event.Name = "fetch"
	EventFetched    event.Name = "fetched"
	EventFetchError event.Name = "fetch-error"
	EventEdit       event.Name = "edit"
	EventCreate     event.Name = "create"
	EventRemove     event.Name = "remove"
)

// lifecycle lists the names every tree bus accepts.
var lifecycle = []event.Name{
	EventInitialize, EventOpen, EventClose, EventSelect, EventFetch,
	EventFetched, EventFetchError, EventEdit, EventCreate, EventRemove,
}

// Typed keys for the lifecycle events.
var (
	Initialized = event.NewKey[InitializeEvent](EventInitialize)
	Opened      = event.NewKey[NodeEvent](EventOpen)
	Closed      = event.NewKey[NodeEvent](EventClose)
	Selected    = event.NewKey[NodeEvent](EventSelect)
	Fetching    = event.NewKey[FetchEvent](EventFetch)
	Fetched     = event.NewKey[FetchedEvent](EventFetched)
	FetchFailed = event.NewKey[FetchErrorEvent](EventFetchError)
	Edited      = event.NewKey[EditEvent](EventEdit)
	Created     = event.NewKey[CreateEvent](EventCreate)
	Removed     = event.NewKey[RemoveEvent](EventRemove)
)

// Fielder is implemented by payloads that can be flattened for scripts.
type Fielder interface {
	Fields() map[string]any
}

// InitializeEvent is published once plugins are initialized.
type InitializeEvent struct {
	Tree *Tree
}

func (e InitializeEvent) Fields() map[string]any {
	return map[string]any{"plugins": e.Tree.Plugins().Names()}
}

// NodeEvent is the payload of open, close and select.
type NodeEvent struct {
	ID string
	// Target is the node's <li>. Mutate it only through Tree.WithNode.
	Target *html.Node
}

func (e NodeEvent) Fields() map[string]any {
	return map[string]any{"id": e.ID}
}

// FetchEvent is published when a subtree load starts.
type FetchEvent struct {
	ID     string
	URI    string
	Target *html.Node
}

func (e FetchEvent) Fields() map[string]any {
	return map[string]any{"id": e.ID, "uri": e.URI}
}

// FetchedEvent is published after loaded children are spliced in.
type FetchedEvent struct {
	ID       string
	Response *Payload
	Children []string
	Target   *html.Node
}

func (e FetchedEvent) Fields() map[string]any {
	children := make([]any, len(e.Children))
	for i, c := range e.Children {
		children[i] = c
	}
	return map[string]any{"id": e.ID, "children": children, "kind": e.Response.Kind.String()}
}

// FetchErrorEvent is published when a subtree load fails.
type FetchErrorEvent struct {
	ID     string
	URI    string
	Err    error
	Target *html.Node
}

func (e FetchErrorEvent) Fields() map[string]any {
	return map[string]any{"id": e.ID, "uri": e.URI, "error": e.Err.Error()}
}

// EditEvent is published when a node label changes.
type EditEvent struct {
	ID       string
	OldValue string
	NewValue string
	Target   *html.Node
}

func (e EditEvent) Fields() map[string]any {
	return map[string]any{"id": e.ID, "oldValue": e.OldValue, "newValue": e.NewValue}
}

// CreateEvent is published after a node is created.
type CreateEvent struct {
	ID       string
	ParentID string
	Target   *html.Node
}

func (e CreateEvent) Fields() map[string]any {
	return map[string]any{"id": e.ID, "parent": e.ParentID}
}

// RemoveEvent is published after a node and its descendants are removed.
type RemoveEvent struct {
	ID      string
	Removed []string
}

func (e RemoveEvent) Fields() map[string]any {
	removed := make([]any, len(e.Removed))
	for i, r := range e.Removed {
		removed[i] = r
	}
	return map[string]any{"id": e.ID, "removed": removed}
}
