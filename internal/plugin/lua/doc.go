// Package lua wraps gopher-lua for script plugins.
//
// A State is a sandboxed interpreter: only the base, table, string and math
// libraries are opened, file loading functions are removed, and require
// resolves only modules preloaded by the host.
//
//	state, err := lua.NewState(lua.WithExecutionTimeout(time.Second))
//	if err != nil {
//		return err
//	}
//	defer state.Close()
//
//	state.PreloadModule("tree", loader)
//	if err := state.DoFile("plugin.lua"); err != nil {
//		return err
//	}
//
// The Bridge converts between Go and Lua values:
//
//	tbl := state.Bridge().ToLuaValue(map[string]any{"id": "docs"})
//	v := state.Bridge().ToGoValue(tbl)
package lua
