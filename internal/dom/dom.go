// Package dom provides helpers over golang.org/x/net/html node trees.
package dom

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNotFound is returned when a query matches nothing.
var ErrNotFound = errors.New("element not found")

// Parse parses a complete HTML document.
func Parse(markup string) (*html.Node, error) {
	return html.Parse(strings.NewReader(markup))
}

// ParseFragment parses markup as the content of an element of type context,
// so that list items parse without a surrounding list.
func ParseFragment(markup string, context atom.Atom) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: context.String(), DataAtom: context}
	return html.ParseFragment(strings.NewReader(markup), ctx)
}

// Element creates a detached element. attrs are key, value pairs.
func Element(tag atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag.String(), DataAtom: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Text creates a detached text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// IsElement reports whether n is an element of type tag.
func IsElement(n *html.Node, tag atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == tag
}

// Attr returns the value of attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key, replacing any existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key.
func RemoveAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// Attributes returns the attributes of n whose keys start with prefix,
// keyed by the remainder of the key.
func Attributes(n *html.Node, prefix string) map[string]string {
	out := make(map[string]string)
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.HasPrefix(a.Key, prefix) && len(a.Key) > len(prefix) {
			out[a.Key[len(prefix):]] = a.Val
		}
	}
	return out
}

// Classes returns the class list of n.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether n has class c.
func HasClass(n *html.Node, c string) bool {
	return slices.Contains(Classes(n), c)
}

// AddClass adds classes that n does not have yet.
func AddClass(n *html.Node, cs ...string) {
	list := Classes(n)
	changed := false
	for _, c := range cs {
		if !slices.Contains(list, c) {
			list = append(list, c)
			changed = true
		}
	}
	if changed {
		SetAttr(n, "class", strings.Join(list, " "))
	}
}

// RemoveClass removes classes from n.
func RemoveClass(n *html.Node, cs ...string) {
	list := Classes(n)
	kept := slices.DeleteFunc(list, func(c string) bool { return slices.Contains(cs, c) })
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// ReplaceClass removes old and adds c.
func ReplaceClass(n *html.Node, old, c string) {
	RemoveClass(n, old)
	AddClass(n, c)
}

// ChildElement returns the first direct child element of type tag.
func ChildElement(n *html.Node, tag atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c, tag) {
			return c
		}
	}
	return nil
}

// ChildElements returns the direct child elements of type tag.
func ChildElements(n *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c, tag) {
			out = append(out, c)
		}
	}
	return out
}

// FirstText returns the first direct child text node with non-blank content.
func FirstText(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return c
		}
	}
	return nil
}

// TextContent returns the concatenated text below n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Closest returns the nearest ancestor of n, n excluded, of type tag.
func Closest(n *html.Node, tag atom.Atom) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p, tag) {
			return p
		}
	}
	return nil
}

// Detach removes n from its parent.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// RemoveChildren detaches every child of n and returns them.
func RemoveChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		out = append(out, c)
		c = next
	}
	return out
}

// Prepend inserts child as the first child of n.
func Prepend(n, child *html.Node) {
	if n.FirstChild == nil {
		n.AppendChild(child)
		return
	}
	n.InsertBefore(child, n.FirstChild)
}

// InsertAfter inserts n after ref in ref's parent.
func InsertAfter(ref, n *html.Node) {
	if ref.NextSibling == nil {
		ref.Parent.AppendChild(n)
		return
	}
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// Walk calls fn for n and each descendant in document order. Returning false
// skips the node's descendants.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Render serializes n and its descendants.
func Render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

var selectors sync.Map

func compile(sel string) (cascadia.Selector, error) {
	if s, ok := selectors.Load(sel); ok {
		return s.(cascadia.Selector), nil
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", sel, err)
	}
	selectors.Store(sel, s)
	return s, nil
}

// Query returns the first descendant of n matching the CSS selector.
func Query(n *html.Node, sel string) (*html.Node, error) {
	s, err := compile(sel)
	if err != nil {
		return nil, err
	}
	m := s.MatchFirst(n)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return m, nil
}

// QueryAll returns every descendant of n matching the CSS selector.
func QueryAll(n *html.Node, sel string) ([]*html.Node, error) {
	s, err := compile(sel)
	if err != nil {
		return nil, err
	}
	return s.MatchAll(n), nil
}

// ByID returns the element whose id attribute is id.
func ByID(root *html.Node, id string) (*html.Node, error) {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if v, ok := Attr(n, "id"); ok && v == id {
				found = n
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%w: #%s", ErrNotFound, id)
	}
	return found, nil
}
