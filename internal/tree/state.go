package tree

import (
	"context"
	"fmt"
	"maps"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/arbor/internal/dom"
)

// State is the open/closed state of a node.
type State int

const (
	// StateNotApplicable is the state of a leaf.
	StateNotApplicable State = iota
	StateClosed
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "n/a"
	}
}

func (n *node) state() State {
	switch {
	case !n.parent():
		return StateNotApplicable
	case n.open:
		return StateOpen
	default:
		return StateClosed
	}
}

// Node is a snapshot of one node.
type Node struct {
	ID          string
	Label       string
	Parent      bool
	State       State
	Loading     bool
	FetchSource string
	Cached      bool
	Selected    bool
	Depth       int
	Attributes  map[string]string
	Children    []string
}

func (t *Tree) snapshotLocked(n *node) Node {
	return Node{
		ID:          n.id,
		Label:       n.label,
		Parent:      n.parent(),
		State:       n.state(),
		Loading:     n.loading,
		FetchSource: n.fetch,
		Cached:      n.payload != nil,
		Selected:    t.selected == n.id,
		Depth:       t.depthLocked(n.li),
		Attributes:  maps.Clone(n.attrs),
		Children:    t.childIDsLocked(n),
	}
}

func (t *Tree) depthLocked(li *html.Node) int {
	depth := 0
	for p := dom.Closest(li, atom.Li); p != nil; p = dom.Closest(p, atom.Li) {
		if p == t.root || !t.contains(p) {
			break
		}
		depth++
	}
	return depth
}

// contains reports whether n is inside the tree root.
func (t *Tree) contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == t.root {
			return true
		}
	}
	return false
}

func (t *Tree) childIDsLocked(n *node) []string {
	if n.list == nil {
		return nil
	}
	return t.itemIDsLocked(n.list)
}

// itemIDsLocked returns the ids of the known items directly under list.
func (t *Tree) itemIDsLocked(list *html.Node) []string {
	var ids []string
	for _, li := range dom.ChildElements(list, atom.Li) {
		if id, ok := dom.Attr(li, t.cfg.prefix+"id"); ok {
			if n, ok := t.nodes[id]; ok && n.li == li {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (t *Tree) lookupLocked(id string) (*node, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

func (t *Tree) parentLocked(id string) (*node, error) {
	n, err := t.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if !n.parent() {
		return nil, fmt.Errorf("%w: %q", ErrNotParent, id)
	}
	return n, nil
}

// Open opens the parent node id. Opening a node that declares a fetch source
// and has nothing cached or loading starts a background load; its outcome is
// reported by the fetched and fetch-error events and by Wait.
func (t *Tree) Open(ctx context.Context, id string) error {
	t.mu.Lock()
	n, err := t.parentLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if n.open {
		t.mu.Unlock()
		return nil
	}
	starts := t.openLocked(n)
	target := n.li
	t.mu.Unlock()

	t.launch(ctx, starts)
	emit(ctx, t, Opened, NodeEvent{ID: id, Target: target})
	return nil
}

func (t *Tree) openLocked(n *node) []*loadStart {
	var starts []*loadStart
	if n.fetch != "" && n.payload == nil && !n.loading {
		if s := t.beginLoadLocked(n, n.fetch, true); s != nil {
			starts = append(starts, s)
		}
	}
	n.open = true
	dom.ReplaceClass(n.li, classHide, classShow)
	return starts
}

// Close closes the parent node id. A load in flight is not interrupted and
// still splices its result into the closed node.
func (t *Tree) Close(ctx context.Context, id string) error {
	t.mu.Lock()
	n, err := t.parentLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if !n.open {
		t.mu.Unlock()
		return nil
	}
	n.open = false
	dom.ReplaceClass(n.li, classShow, classHide)
	target := n.li
	t.mu.Unlock()

	emit(ctx, t, Closed, NodeEvent{ID: id, Target: target})
	return nil
}

// Toggle opens a closed node and closes an open one.
func (t *Tree) Toggle(ctx context.Context, id string) error {
	t.mu.Lock()
	n, err := t.parentLocked(id)
	open := err == nil && n.open
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if open {
		return t.Close(ctx, id)
	}
	return t.Open(ctx, id)
}

// State returns the state of node id.
func (t *Tree) State(id string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return StateNotApplicable, err
	}
	return n.state(), nil
}

// ToggleAll flips every parent node.
func (t *Tree) ToggleAll(ctx context.Context) error {
	for _, id := range t.parentIDs() {
		if err := t.Toggle(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// OpenAll opens every parent node.
func (t *Tree) OpenAll(ctx context.Context) error {
	for _, id := range t.parentIDs() {
		if err := t.Open(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every parent node.
func (t *Tree) CloseAll(ctx context.Context) error {
	for _, id := range t.parentIDs() {
		if err := t.Close(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) parentIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, id := range t.allIDsLocked() {
		if t.nodes[id].parent() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Node returns a snapshot of node id.
func (t *Tree) Node(id string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return Node{}, err
	}
	return t.snapshotLocked(n), nil
}

// Nodes returns a snapshot of every node in document order.
func (t *Tree) Nodes() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.allIDsLocked()
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.snapshotLocked(t.nodes[id]))
	}
	return out
}

// Roots returns the ids of the top-level nodes.
func (t *Tree) Roots() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.itemIDsLocked(t.root)
}

// Children returns the ids of the direct children of node id.
func (t *Tree) Children(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return t.childIDsLocked(n), nil
}

// Descendants returns the ids below node id in document order.
func (t *Tree) Descendants(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return t.subtreeIDsLocked(n.li)[1:], nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Payload returns the cached response of node id, if it has one.
func (t *Tree) Payload(id string) (*Payload, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok || n.payload == nil {
		return nil, false
	}
	return n.payload, true
}

// WithNode runs fn with the <li> of node id while holding the tree lock. fn
// must not call other Tree methods.
func (t *Tree) WithNode(id string, fn func(li *html.Node) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return err
	}
	return fn(n.li)
}

// Row is one line of the visible outline.
type Row struct {
	ID       string
	Label    string
	Depth    int
	Parent   bool
	Open     bool
	Loading  bool
	Selected bool
}

// Visible returns the nodes whose ancestors are all open, in document order.
func (t *Tree) Visible() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	var rows []Row
	var walk func(list *html.Node, depth int)
	walk = func(list *html.Node, depth int) {
		for _, id := range t.itemIDsLocked(list) {
			n := t.nodes[id]
			rows = append(rows, Row{
				ID:       n.id,
				Label:    n.label,
				Depth:    depth,
				Parent:   n.parent(),
				Open:     n.open,
				Loading:  n.loading,
				Selected: t.selected == n.id,
			})
			if n.open && n.list != nil {
				walk(n.list, depth+1)
			}
		}
	}
	walk(t.root, 0)
	return rows
}
