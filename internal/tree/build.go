package tree

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/arbor/internal/dom"
)

// CSS classes written by the tree.
const (
	classTree          = "treejs"
	classItem          = "treejs-li"
	classChild         = "treejs-child"
	classAnchorWrapper = "treejs-anchor-wrapper"
	classAnchor        = "treejs-anchor"
	classIcon          = "treejs-icon"
	classHasChildren   = "has-children"
	classShow          = "show"
	classHide          = "hide"
	classLoading       = "loading"
	classSelected      = "selected"
	classLoader        = "treejs-loader"
)

// buildLocked assigns identities, validates attributes and decorates items,
// which must be in document order so that parents precede their children.
// Items already known to the tree are skipped. On failure every node built
// by this call is unregistered again. The caller holds t.mu.
func (t *Tree) buildLocked(items []*html.Node) ([]string, error) {
	var built []string
	for _, li := range items {
		if !dom.IsElement(li, atom.Li) || t.known(li) {
			continue
		}
		n, err := t.buildItemLocked(li)
		if err != nil {
			t.unregisterLocked(built)
			return nil, err
		}
		built = append(built, n.id)
	}
	return built, nil
}

func (t *Tree) known(li *html.Node) bool {
	id, ok := dom.Attr(li, t.cfg.prefix+"id")
	if !ok {
		return false
	}
	n, ok := t.nodes[id]
	return ok && n.li == li
}

func (t *Tree) buildItemLocked(li *html.Node) (*node, error) {
	prefix := t.cfg.prefix
	attrs := dom.Attributes(li, prefix)

	wrapper := childWithClass(li, atom.Span, classAnchorWrapper)
	var (
		text   *html.Node
		anchor *html.Node
		label  string
	)
	if wrapper != nil {
		anchor = childWithClass(wrapper, atom.A, classAnchor)
		if anchor != nil {
			label = strings.TrimSpace(dom.TextContent(anchor))
		}
	} else {
		text = dom.FirstText(li)
		if text != nil {
			label = strings.TrimSpace(text.Data)
		}
	}

	explicit := attrs["id"]
	if explicit == "" {
		explicit = attrs["name"]
	}
	if explicit == "" {
		explicit, _ = dom.Attr(li, "id")
	}

	id, err := t.ids.Assign(explicit, label)
	if err != nil {
		return nil, fmt.Errorf("build node %q: %w", label, err)
	}
	t.attrs.ValidateAttributes(id, attrs)

	n := &node{
		id:    id,
		label: label,
		li:    li,
		fetch: strings.TrimSpace(attrs["fetch-url"]),
		attrs: attrs,
		list:  dom.ChildElement(li, atom.Ul),
	}
	if n.list == nil && n.fetch != "" {
		n.list = dom.Element(atom.Ul)
		li.AppendChild(n.list)
	}

	if anchor == nil {
		_, anchor = t.decorate(li, text, label, n.parent())
	}
	n.anchor = anchor

	dom.AddClass(li, classItem)
	if n.parent() {
		dom.AddClass(li, classHasChildren)
		dom.AddClass(n.list, classChild)
		n.open = truthy(attrs, "open") || t.openChildAncestor(li)
		if n.open {
			dom.ReplaceClass(li, classHide, classShow)
		} else {
			dom.ReplaceClass(li, classShow, classHide)
		}
	}
	dom.SetAttr(li, prefix+"id", id)
	n.attrs["id"] = id

	t.nodes[id] = n
	return n, nil
}

// decorate replaces the label text of li with the anchor wrapper.
func (t *Tree) decorate(li, text *html.Node, label string, parent bool) (wrapper, anchor *html.Node) {
	wrapper = dom.Element(atom.Span, "class", classAnchorWrapper)
	kind := "file"
	if parent {
		kind = "folder"
	}
	wrapper.AppendChild(dom.Element(atom.Span, "class", classIcon+" "+classIcon+"-"+kind))

	anchor = dom.Element(atom.A, "class", classAnchor, "href", "#")
	anchor.AppendChild(dom.Text(label))
	wrapper.AppendChild(anchor)

	if parent {
		wrapper.AppendChild(dom.Element(atom.Span, "class", classIcon+" "+classIcon+"-chevron"))
	}

	if text != nil {
		li.InsertBefore(wrapper, text)
		li.RemoveChild(text)
	} else {
		dom.Prepend(li, wrapper)
	}
	return wrapper, anchor
}

// openChildAncestor reports whether an enclosing item asks for its
// descendants to start open.
func (t *Tree) openChildAncestor(li *html.Node) bool {
	for p := dom.Closest(li, atom.Li); p != nil; p = dom.Closest(p, atom.Li) {
		if truthy(dom.Attributes(p, t.cfg.prefix), "open-child") {
			return true
		}
	}
	return false
}

// unregisterLocked forgets ids and frees them for reuse.
func (t *Tree) unregisterLocked(ids []string) {
	for _, id := range ids {
		delete(t.nodes, id)
		if t.selected == id {
			t.selected = ""
		}
	}
	t.ids.Release(ids...)
}

// subtreeIDsLocked returns the ids of li and every item below it.
func (t *Tree) subtreeIDsLocked(li *html.Node) []string {
	var ids []string
	dom.Walk(li, func(n *html.Node) bool {
		if dom.IsElement(n, atom.Li) {
			if id, ok := dom.Attr(n, t.cfg.prefix+"id"); ok {
				if known, ok := t.nodes[id]; ok && known.li == n {
					ids = append(ids, id)
				}
			}
		}
		return true
	})
	return ids
}

// allIDsLocked returns every node id in document order.
func (t *Tree) allIDsLocked() []string {
	var ids []string
	for c := t.root.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsElement(c, atom.Li) {
			ids = append(ids, t.subtreeIDsLocked(c)...)
		}
	}
	return ids
}

func childWithClass(n *html.Node, tag atom.Atom, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsElement(c, tag) && dom.HasClass(c, class) {
			return c
		}
	}
	return nil
}

// truthy reports whether a boolean attribute is present and not "false".
func truthy(attrs map[string]string, key string) bool {
	v, ok := attrs[key]
	return ok && v != "false"
}
