// Package tree turns a nested <ul>/<li> list into a navigable tree.
//
// Building a tree assigns every item a stable id, validates its prefixed
// attributes and decorates it with an anchor and icon placeholders. Parent
// items have an open/closed state; items that declare a fetch-url load their
// children lazily the first time they are opened.
//
// Lifecycle
//
// Every state change is published on the tree's event bus after the tree
// lock is released:
//
//	initialize   plugins are ready
//	open, close  a parent changed state
//	select       an item was selected
//	fetch        a subtree load started
//	fetched      a loaded subtree was spliced in
//	fetch-error  a subtree load failed
//	edit         an item was renamed
//	create       an item was created
//	remove       an item and its descendants were removed
//
// Plugins are defined process-wide with Define, usually from the init
// function of their package, and are initialized per tree from WithPlugins.
// A plugin factory receives the tree and may subscribe to its events or
// require other plugins.
//
// Loading
//
// At most one load runs per node. Opening a node that is loading does not
// start another request, and a load in flight when its node is closed still
// splices its result. A failed load leaves nothing cached, so the next open
// retries it.
package tree
