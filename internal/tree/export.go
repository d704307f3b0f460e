package tree

import (
	"golang.org/x/net/html"

	"github.com/dshills/arbor/internal/dom"
)

// ToJSON returns the tree as node specs. Feeding the result back through a
// JSON load rebuilds the same ids.
func (t *Tree) ToJSON() []NodeSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.specsLocked(t.root)
}

func (t *Tree) specsLocked(list *html.Node) []NodeSpec {
	specs := make([]NodeSpec, 0)
	for _, id := range t.itemIDsLocked(list) {
		n := t.nodes[id]
		s := NodeSpec{
			Label:    n.label,
			Name:     n.id,
			Children: make([]NodeSpec, 0),
		}
		for k, v := range n.attrs {
			if k == "id" || k == "name" {
				continue
			}
			if s.Attributes == nil {
				s.Attributes = make(map[string]string)
			}
			s.Attributes[k] = v
		}
		if n.list != nil {
			s.Children = t.specsLocked(n.list)
		}
		specs = append(specs, s)
	}
	return specs
}

// Render serializes the decorated tree root.
func (t *Tree) Render() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return dom.Render(t.root)
}
