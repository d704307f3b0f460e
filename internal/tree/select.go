package tree

import (
	"context"
	"fmt"
	"maps"

	"github.com/dshills/arbor/internal/dom"
	"github.com/dshills/arbor/internal/handler"
)

// Select marks node id as the selection and publishes select. A node that
// declares onselect then runs it through the handler dispatcher; its error is
// returned after the event has been published.
func (t *Tree) Select(ctx context.Context, id string) error {
	t.mu.Lock()
	n, err := t.lookupLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if prev, ok := t.nodes[t.selected]; ok && prev != n {
		dom.RemoveClass(prev.li, classSelected)
	}
	t.selected = id
	dom.AddClass(n.li, classSelected)

	target := n.li
	source := n.attrs["onselect"]
	sel := handler.Selection{ID: id, Label: n.label, Attributes: maps.Clone(n.attrs)}
	t.mu.Unlock()

	emit(ctx, t, Selected, NodeEvent{ID: id, Target: target})

	if source == "" {
		return nil
	}
	if err := t.handlers.Run(ctx, source, sel); err != nil {
		t.logger.Warn("onselect failed", "id", id, "error", err)
		return fmt.Errorf("onselect of %q: %w", id, err)
	}
	return nil
}

// Selected returns the id of the selected node.
func (t *Tree) Selected() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected, t.selected != ""
}

// ClearSelection drops the selection.
func (t *Tree) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[t.selected]; ok {
		dom.RemoveClass(n.li, classSelected)
	}
	t.selected = ""
}

// Click handles a click on the label of node id. Parents toggle unless the
// tree opens on double click; everything else is selected.
func (t *Tree) Click(ctx context.Context, id string) error {
	parent, err := t.isParent(id)
	if err != nil {
		return err
	}
	if parent && !t.cfg.openOnDblClick {
		return t.Toggle(ctx, id)
	}
	return t.Select(ctx, id)
}

// DoubleClick handles a double click on the label of node id.
func (t *Tree) DoubleClick(ctx context.Context, id string) error {
	parent, err := t.isParent(id)
	if err != nil {
		return err
	}
	if parent && t.cfg.openOnDblClick {
		return t.Toggle(ctx, id)
	}
	return t.Select(ctx, id)
}

func (t *Tree) isParent(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.lookupLocked(id)
	if err != nil {
		return false, err
	}
	return n.parent(), nil
}
