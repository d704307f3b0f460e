package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/arbor/internal/dom"
)

// loadStart is a registered load waiting for its fetch event to be
// published. The flight does not fetch until gate is closed.
type loadStart struct {
	id     string
	uri    string
	target *html.Node
	gate   chan struct{}
	ch     <-chan singleflight.Result
}

// LoadChildren fetches uri and replaces the children of node id with the
// decoded subtree. A node whose children are already cached is left alone.
// A call for a node that is loading joins the load in flight.
//
// LoadChildren blocks until the load settles or ctx is done. Cancelling ctx
// does not stop the load.
func (t *Tree) LoadChildren(ctx context.Context, uri, id string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ErrEmptyURI
	}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return ErrClosed
	}
	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if n.payload != nil {
		t.mu.Unlock()
		return nil
	}

	var (
		start *loadStart
		ch    <-chan singleflight.Result
	)
	if n.loading {
		// A flight is registered for id whenever the node is loading, so
		// this joins it and fn never runs.
		ch = t.flights.DoChan(id, func() (any, error) { return nil, nil })
	} else {
		start = t.beginLoadLocked(n, uri, false)
		ch = start.ch
	}
	t.mu.Unlock()

	if start != nil {
		t.launch(ctx, []*loadStart{start})
	}

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every background load has settled and returns their
// errors. Loads started while Wait is blocked are waited for too.
func (t *Tree) Wait() error {
	t.loads.Wait()
	t.errMu.Lock()
	errs := t.loadErrs
	t.loadErrs = nil
	t.errMu.Unlock()
	return errors.Join(errs...)
}

// beginLoadLocked marks n loading, shows the placeholder and registers the
// flight for n.id. It returns nil once the tree is closed. The caller holds
// t.mu and must pass the result to launch after unlocking.
func (t *Tree) beginLoadLocked(n *node, uri string, background bool) *loadStart {
	if t.closed.Load() {
		return nil
	}
	t.ensureListLocked(n)

	n.loading = true
	dom.AddClass(n.li, classLoading)
	n.loader = dom.Element(atom.Div, "class", classLoader)
	n.loader.AppendChild(dom.Element(atom.Span, "class", classLoader+"-icon"))
	dom.Prepend(n.list, n.loader)

	s := &loadStart{id: n.id, uri: uri, target: n.li, gate: make(chan struct{})}
	t.loads.Add(1)
	s.ch = t.flights.DoChan(n.id, func() (any, error) {
		defer t.loads.Done()
		select {
		case <-s.gate:
		case <-t.ctx.Done():
		}
		err := t.fetchAndSplice(n, uri)
		if err != nil && background {
			t.errMu.Lock()
			t.loadErrs = append(t.loadErrs, err)
			t.errMu.Unlock()
		}
		return nil, err
	})
	return s
}

// launch publishes the fetch event of each load and lets it proceed.
func (t *Tree) launch(ctx context.Context, starts []*loadStart) {
	for _, s := range starts {
		emit(ctx, t, Fetching, FetchEvent{ID: s.id, URI: s.uri, Target: s.target})
		close(s.gate)
	}
}

// pendingLoadsLocked begins the loads owed by open nodes among ids that
// declare a source and have nothing cached.
func (t *Tree) pendingLoadsLocked(ids []string) []*loadStart {
	var starts []*loadStart
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok || !n.open || n.fetch == "" || n.payload != nil || n.loading {
			continue
		}
		if s := t.beginLoadLocked(n, n.fetch, true); s != nil {
			starts = append(starts, s)
		}
	}
	return starts
}

// ensureListLocked gives a leaf an empty child list so it can receive a
// subtree.
func (t *Tree) ensureListLocked(n *node) {
	if n.list != nil {
		return
	}
	n.list = dom.Element(atom.Ul, "class", classChild)
	n.li.AppendChild(n.list)
	dom.AddClass(n.li, classHasChildren, classHide)

	if wrapper := n.anchor.Parent; wrapper != nil {
		if icon := childWithClass(wrapper, atom.Span, classIcon+"-file"); icon != nil {
			dom.ReplaceClass(icon, classIcon+"-file", classIcon+"-folder")
		}
		wrapper.AppendChild(dom.Element(atom.Span, "class", classIcon+" "+classIcon+"-chevron"))
	}
}

// fetchAndSplice runs a registered load for n to completion.
func (t *Tree) fetchAndSplice(n *node, uri string) error {
	ctx := t.ctx
	if t.cfg.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.fetchTimeout)
		defer cancel()
	}

	resp, err := t.fetcher.Fetch(ctx, uri)
	if err != nil {
		return t.failLoad(n, uri, err)
	}
	payload, items, err := t.decode(resp)
	if err != nil {
		return t.failLoad(n, uri, err)
	}
	if err := t.ctx.Err(); err != nil {
		return t.failLoad(n, uri, err)
	}

	t.mu.Lock()
	if t.nodes[n.id] != n {
		t.mu.Unlock()
		return &FetchError{ID: n.id, URI: uri, Err: ErrNodeRemoved}
	}

	if n.loader != nil {
		dom.Detach(n.loader)
		n.loader = nil
	}

	// Replace the current children, keeping them to restore on failure.
	selected := t.selected
	old := dom.ChildElements(n.list, atom.Li)
	var oldNodes []*node
	for _, li := range old {
		for _, id := range t.subtreeIDsLocked(li) {
			oldNodes = append(oldNodes, t.nodes[id])
		}
	}
	for _, o := range oldNodes {
		delete(t.nodes, o.id)
		t.ids.Release(o.id)
	}
	if _, ok := t.nodes[t.selected]; !ok {
		t.selected = ""
	}
	for _, li := range old {
		dom.Detach(li)
	}

	var lis []*html.Node
	for _, item := range items {
		n.list.AppendChild(item)
		dom.Walk(item, func(c *html.Node) bool {
			if dom.IsElement(c, atom.Li) {
				lis = append(lis, c)
			}
			return true
		})
	}

	built, err := t.buildLocked(lis)
	if err != nil {
		for _, item := range items {
			dom.Detach(item)
		}
		for _, li := range old {
			n.list.AppendChild(li)
		}
		for _, o := range oldNodes {
			t.nodes[o.id] = o
			_ = t.ids.Reserve(o.id)
		}
		t.selected = selected
		t.mu.Unlock()
		return t.failLoad(n, uri, err)
	}
	n.payload = payload
	n.loading = false
	dom.RemoveClass(n.li, classLoading)
	t.flights.Forget(n.id)

	children := make([]string, 0, len(items))
	for _, item := range items {
		if dom.IsElement(item, atom.Li) {
			if id, ok := dom.Attr(item, t.cfg.prefix+"id"); ok {
				children = append(children, id)
			}
		}
	}
	pending := t.pendingLoadsLocked(built)
	target := n.li
	t.mu.Unlock()

	t.logger.Debug("subtree loaded", "id", n.id, "uri", uri, "kind", payload.Kind, "nodes", len(built))
	emit(context.Background(), t, Fetched, FetchedEvent{
		ID:       n.id,
		Response: payload,
		Children: children,
		Target:   target,
	})
	t.launch(context.Background(), pending)
	return nil
}

// failLoad clears the loading state of n without caching anything, so a
// later open retries, and publishes fetch-error.
func (t *Tree) failLoad(n *node, uri string, err error) error {
	ferr := &FetchError{ID: n.id, URI: uri, Err: err}
	var status *StatusError
	if errors.As(err, &status) {
		ferr.Status = status.Code
	}

	t.mu.Lock()
	current := t.nodes[n.id] == n
	if current {
		n.loading = false
		dom.RemoveClass(n.li, classLoading)
		if n.loader != nil {
			dom.Detach(n.loader)
			n.loader = nil
		}
		t.flights.Forget(n.id)
	}
	target := n.li
	t.mu.Unlock()

	t.logger.Warn("subtree load failed", "id", n.id, "uri", uri, "error", err)
	if current {
		emit(context.Background(), t, FetchFailed, FetchErrorEvent{ID: n.id, URI: uri, Err: ferr, Target: target})
	}
	return ferr
}
