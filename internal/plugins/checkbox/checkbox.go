// Package checkbox adds a checkbox to every tree node. Checking a parent
// checks its descendants, and the set of checked ids is published to the
// plugin data under "checked".
package checkbox

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/arbor/internal/dom"
	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/tree"
)

// Name is the plugin name.
const Name = "checkbox"

// EventChange is published after checkboxes change.
const EventChange event.Name = "checkbox-change"

// DataKey is the plugin data key holding the checked ids.
const DataKey = "checked"

const (
	classCheckbox      = "treejs-checkbox"
	classAnchorWrapper = "treejs-anchor-wrapper"
)

// Changed is the typed key of EventChange.
var Changed = event.NewKey[ChangeEvent](EventChange)

// ChangeEvent is the payload of EventChange. ID is empty when every node
// changed at once.
type ChangeEvent struct {
	ID       string
	Checked  bool
	Affected []string
	Target   *html.Node
}

func (e ChangeEvent) Fields() map[string]any {
	affected := make([]any, len(e.Affected))
	for i, a := range e.Affected {
		affected[i] = a
	}
	return map[string]any{"id": e.ID, "checked": e.Checked, "affected": affected}
}

// Checkbox is the capability of the checkbox plugin.
type Checkbox struct {
	tree    *tree.Tree
	cascade bool

	mu      sync.Mutex
	checked map[string]bool
}

func init() {
	tree.MustDefine(Name, New)
}

// New is the plugin factory. Settings:
//
//	cascade  checking a parent checks its descendants (true)
func New(t *tree.Tree, settings plugin.Settings) (any, error) {
	c := &Checkbox{
		tree:    t,
		cascade: settings.Bool("cascade", true),
		checked: make(map[string]bool),
	}
	bus := t.Events()
	bus.Declare(EventChange)

	if _, err := event.Once(bus, tree.Initialized, func(context.Context, tree.InitializeEvent) error {
		nodes := t.Nodes()
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		return c.attach(ids, false)
	}); err != nil {
		return nil, err
	}

	if _, err := event.On(bus, tree.Fetched, func(_ context.Context, e tree.FetchedEvent) error {
		ids, err := t.Descendants(e.ID)
		if err != nil {
			return err
		}
		c.prune()
		return c.attach(ids, c.cascade && c.IsChecked(e.ID))
	}); err != nil {
		return nil, err
	}

	if _, err := event.On(bus, tree.Created, func(_ context.Context, e tree.CreateEvent) error {
		return c.attach([]string{e.ID}, c.cascade && e.ParentID != "" && c.IsChecked(e.ParentID))
	}); err != nil {
		return nil, err
	}

	if _, err := event.On(bus, tree.Removed, func(_ context.Context, e tree.RemoveEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, id := range e.Removed {
			delete(c.checked, id)
		}
		c.publishLocked()
		return nil
	}); err != nil {
		return nil, err
	}

	return c, nil
}

// attach adds a checkbox to each node in ids that has none.
func (c *Checkbox) attach(ids []string, checked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if checked {
			c.checked[id] = true
		}
		on := c.checked[id]
		err := c.tree.WithNode(id, func(li *html.Node) error {
			if input := checkbox(li); input != nil {
				setChecked(input, on)
				return nil
			}
			wrapper := anchorWrapper(li)
			if wrapper == nil {
				return nil
			}
			input := dom.Element(atom.Input, "type", "checkbox", "class", classCheckbox, "name", id)
			setChecked(input, on)
			dom.Prepend(wrapper, input)
			return nil
		})
		if err != nil {
			return fmt.Errorf("attach checkbox to %q: %w", id, err)
		}
	}
	if checked {
		c.publishLocked()
	}
	return nil
}

// prune forgets nodes that a load replaced.
func (c *Checkbox) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.checked {
		if _, err := c.tree.Node(id); err != nil {
			delete(c.checked, id)
		}
	}
	c.publishLocked()
}

// Toggle flips the checkbox of node id.
func (c *Checkbox) Toggle(ctx context.Context, id string) error {
	return c.Set(ctx, id, !c.IsChecked(id))
}

// Set checks or unchecks node id and, when cascading, its descendants.
func (c *Checkbox) Set(ctx context.Context, id string, checked bool) error {
	affected := []string{id}
	if c.cascade {
		desc, err := c.tree.Descendants(id)
		if err != nil {
			return err
		}
		affected = append(affected, desc...)
	} else if _, err := c.tree.Node(id); err != nil {
		return err
	}

	var target *html.Node
	if err := c.tree.WithNode(id, func(li *html.Node) error {
		target = li
		return nil
	}); err != nil {
		return err
	}

	if err := c.apply(affected, checked); err != nil {
		return err
	}
	return event.Trigger(ctx, c.tree.Events(), Changed, ChangeEvent{
		ID:       id,
		Checked:  checked,
		Affected: affected,
		Target:   target,
	})
}

// SetAll checks or unchecks every node.
func (c *Checkbox) SetAll(ctx context.Context, checked bool) error {
	nodes := c.tree.Nodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	if err := c.apply(ids, checked); err != nil {
		return err
	}
	return event.Trigger(ctx, c.tree.Events(), Changed, ChangeEvent{Checked: checked, Affected: ids})
}

func (c *Checkbox) apply(ids []string, checked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if checked {
			c.checked[id] = true
		} else {
			delete(c.checked, id)
		}
		err := c.tree.WithNode(id, func(li *html.Node) error {
			if input := checkbox(li); input != nil {
				setChecked(input, checked)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	c.publishLocked()
	return nil
}

func (c *Checkbox) publishLocked() {
	c.tree.Plugins().Data().Set(DataKey, maps.Clone(c.checked))
}

// IsChecked reports whether node id is checked.
func (c *Checkbox) IsChecked(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checked[id]
}

// Checked returns the checked ids in sorted order.
func (c *Checkbox) Checked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.checked))
}

func anchorWrapper(li *html.Node) *html.Node {
	for _, span := range dom.ChildElements(li, atom.Span) {
		if dom.HasClass(span, classAnchorWrapper) {
			return span
		}
	}
	return nil
}

func checkbox(li *html.Node) *html.Node {
	wrapper := anchorWrapper(li)
	if wrapper == nil {
		return nil
	}
	for _, input := range dom.ChildElements(wrapper, atom.Input) {
		if dom.HasClass(input, classCheckbox) {
			return input
		}
	}
	return nil
}

func setChecked(input *html.Node, on bool) {
	if on {
		dom.SetAttr(input, "checked", "")
	} else {
		dom.RemoveAttr(input, "checked")
	}
}
