// Package plugin provides the plugin registry and per-host runtime.
//
// A Registry maps plugin names to factories. It is shared: a host package
// usually keeps one process-wide registry and plugin packages define
// themselves into it from init:
//
//	func init() {
//		tree.MustDefine("checkbox", New)
//	}
//
// A Runtime belongs to one host value. Initialize accepts a Request in one of
// three shapes:
//
//	plugin.Names{"checkbox", "dialog"}
//	plugin.Items{{Name: "checkbox", Options: plugin.Settings{"cascade": true}}}
//	plugin.Hash{"checkbox": {"cascade": true}}
//
// and requires each plugin in order, stopping at the first failure.
//
// # Loading
//
// Require loads a plugin the first time it is asked for and memoizes its
// capability, so factories can require their own dependencies:
//
//	func New(t *tree.Tree, s plugin.Settings) (any, error) {
//		dlg, err := t.Require("dialog")
//		...
//	}
//
// Requiring a plugin whose factory is still running is reported as
// ErrCircularDependency; requiring a name with no definition is reported as
// ErrPluginNotDefined. A factory that fails leaves the plugin unloaded so a
// later Require can retry it.
//
// Require is safe for concurrent use: a caller that finds a plugin loading on
// another goroutine waits for that load and shares its result. The shared
// Data area is safe for concurrent use.
package plugin
