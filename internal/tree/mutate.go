package tree

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/arbor/internal/dom"
)

// CreateFolder adds a parent node labelled label and returns its id. An
// empty id derives one from the label. The node is appended to the children
// of parentID when that is a parent, inserted after it when it is a leaf, and
// appended to the top level when parentID is empty.
func (t *Tree) CreateFolder(ctx context.Context, parentID, label, id string) (string, error) {
	return t.create(ctx, parentID, label, id, true)
}

// CreateFile is CreateFolder for a leaf.
func (t *Tree) CreateFile(ctx context.Context, parentID, label, id string) (string, error) {
	return t.create(ctx, parentID, label, id, false)
}

func (t *Tree) create(ctx context.Context, parentID, label, id string, folder bool) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrEmptyLabel
	}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return "", ErrClosed
	}

	li := dom.Element(atom.Li)
	if id != "" {
		dom.SetAttr(li, t.cfg.prefix+"id", id)
	}
	li.AppendChild(dom.Text(label))
	if folder {
		li.AppendChild(dom.Element(atom.Ul))
	}

	if parentID == "" {
		t.root.AppendChild(li)
	} else {
		p, err := t.lookupLocked(parentID)
		if err != nil {
			t.mu.Unlock()
			return "", err
		}
		if p.parent() {
			p.list.AppendChild(li)
		} else {
			dom.InsertAfter(p.li, li)
		}
	}

	// Only the new item is built; the rest of the tree is untouched.
	built, err := t.buildLocked([]*html.Node{li})
	if err != nil {
		dom.Detach(li)
		t.mu.Unlock()
		return "", err
	}
	newID := built[0]
	owner := t.ownerIDLocked(li)
	t.mu.Unlock()

	t.logger.Debug("node created", "id", newID, "parent", owner, "folder", folder)
	emit(ctx, t, Created, CreateEvent{ID: newID, ParentID: owner, Target: li})
	return newID, nil
}

// ownerIDLocked returns the id of the node whose list holds li, or "" at the
// top level.
func (t *Tree) ownerIDLocked(li *html.Node) string {
	p := dom.Closest(li, atom.Li)
	if p == nil || !t.contains(p) {
		return ""
	}
	id, _ := dom.Attr(p, t.cfg.prefix+"id")
	return id
}

// Rename changes the label of node id. The id is kept.
func (t *Tree) Rename(ctx context.Context, id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}

	t.mu.Lock()
	n, err := t.lookupLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	old := n.label
	if old == label {
		t.mu.Unlock()
		return nil
	}
	n.label = label
	dom.RemoveChildren(n.anchor)
	n.anchor.AppendChild(dom.Text(label))
	target := n.li
	t.mu.Unlock()

	emit(ctx, t, Edited, EditEvent{ID: id, OldValue: old, NewValue: label, Target: target})
	return nil
}

// Remove deletes node id and everything below it. Loads in flight for the
// removed nodes complete without splicing.
func (t *Tree) Remove(ctx context.Context, id string) error {
	t.mu.Lock()
	n, err := t.lookupLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	ids := t.subtreeIDsLocked(n.li)
	for _, rid := range ids {
		if t.nodes[rid].loading {
			t.flights.Forget(rid)
		}
	}
	dom.Detach(n.li)
	t.unregisterLocked(ids)
	t.mu.Unlock()

	t.logger.Debug("node removed", "id", id, "removed", len(ids))
	emit(ctx, t, Removed, RemoveEvent{ID: id, Removed: ids})
	return nil
}
