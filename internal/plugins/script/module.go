package script

import (
	"context"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/arbor/internal/event"
)

// openModule builds the table returned by require("tree"). The functions run
// with the interpreter locked and must not call back into h.state.
func (h *Host) openModule(L *lua.LState) int {
	g := h.grants()
	funcs := map[string]lua.LGFunction{
		"log": h.luaLog,
	}
	for name, f := range map[string]struct {
		c  Capability
		fn lua.LGFunction
	}{
		"on":      {CapabilityEvent, h.luaOn(false)},
		"once":    {CapabilityEvent, h.luaOn(true)},
		"off":     {CapabilityEvent, h.luaOff},
		"declare": {CapabilityEvent, h.luaDeclare},
		"trigger": {CapabilityEvent, h.luaTrigger},
		"state":   {CapabilityRead, h.luaState},
		"node":    {CapabilityRead, h.luaNode},
		"roots":   {CapabilityRead, h.luaRoots},
		"open":    {CapabilityWrite, h.queued("open", h.tree.Open)},
		"close":   {CapabilityWrite, h.queued("close", h.tree.Close)},
		"toggle":  {CapabilityWrite, h.queued("toggle", h.tree.Toggle)},
		"select":  {CapabilityWrite, h.queued("select", h.tree.Select)},
		"data":    {CapabilityData, h.luaData},
		"require": {CapabilityPlugin, h.luaRequire},
	} {
		funcs[name] = h.guard(g, f.c, name, f.fn)
	}
	mod := L.SetFuncs(L.NewTable(), funcs)
	L.SetField(mod, "name", lua.LString(h.manifest.Name))
	L.SetField(mod, "version", lua.LString(h.manifest.Version))
	L.Push(mod)
	return 1
}

// guard returns fn when g allows c, and otherwise a function that raises a
// CapabilityError.
func (h *Host) guard(g grants, c Capability, name string, fn lua.LGFunction) lua.LGFunction {
	if g.allows(c) {
		return fn
	}
	return func(L *lua.LState) int {
		err := &CapabilityError{Plugin: h.manifest.Name, Capability: c, Function: name}
		h.logger.Warn("capability denied", "plugin", h.manifest.Name, "function", name, "capability", string(c))
		L.RaiseError("%s", err.Error())
		return 0
	}
}

func (h *Host) grants() grants {
	return grants(h.manifest.Capabilities)
}

// luaOn implements tree.on(name, fn) and tree.once(name, fn). Both return a
// subscription id for tree.off.
func (h *Host) luaOn(once bool) lua.LGFunction {
	return func(L *lua.LState) int {
		name := event.Name(L.CheckString(1))
		fn := L.CheckFunction(2)

		var (
			sub event.Subscription
			err error
		)
		if once {
			sub, err = h.tree.Once(name, h.handler(fn))
		} else {
			sub, err = h.tree.On(name, h.handler(fn))
		}
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		h.track(name, sub)
		L.Push(lua.LString(sub.ID()))
		return 1
	}
}

// luaOff implements tree.off(id) and reports whether a listener was removed.
func (h *Host) luaOff(L *lua.LState) int {
	s, ok := h.untrack(L.CheckString(1))
	if ok {
		ok = h.tree.Off(s.name, s.sub) == nil
	}
	L.Push(lua.LBool(ok))
	return 1
}

func (h *Host) luaState(L *lua.LState) int {
	st, err := h.tree.State(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(st.String()))
	return 1
}

func (h *Host) luaNode(L *lua.LState) int {
	n, err := h.tree.Node(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	b := h.state.Bridge()
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(n.ID))
	L.SetField(t, "label", lua.LString(n.Label))
	L.SetField(t, "parent", lua.LBool(n.Parent))
	L.SetField(t, "state", lua.LString(n.State.String()))
	L.SetField(t, "loading", lua.LBool(n.Loading))
	L.SetField(t, "selected", lua.LBool(n.Selected))
	L.SetField(t, "depth", lua.LNumber(n.Depth))
	L.SetField(t, "children", b.ToLuaValue(n.Children))
	L.SetField(t, "attributes", b.ToLuaValue(n.Attributes))
	L.Push(t)
	return 1
}

func (h *Host) luaRoots(L *lua.LState) int {
	L.Push(h.state.Bridge().ToLuaValue(h.tree.Roots()))
	return 1
}

// luaRequire loads another plugin. Capabilities of Go plugins cannot cross
// into Lua, so only success is reported.
func (h *Host) luaRequire(L *lua.LState) int {
	if _, err := h.tree.Require(L.CheckString(1)); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LTrue)
	return 1
}

// luaData implements tree.data(key) and tree.data(key, value) over the
// plugin data shared by the tree's plugins.
func (h *Host) luaData(L *lua.LState) int {
	key := L.CheckString(1)
	data := h.tree.Plugins().Data()
	b := h.state.Bridge()
	if L.GetTop() >= 2 {
		data.Set(key, b.ToGoValue(L.Get(2)))
		return 0
	}
	v, ok := data.Get(key)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(b.ToLuaValue(v))
	return 1
}

func (h *Host) luaDeclare(L *lua.LState) int {
	for i := 1; i <= L.GetTop(); i++ {
		h.tree.Events().Declare(event.Name(L.CheckString(i)))
	}
	return 0
}

// luaLog implements tree.log(level, msg, key, value, ...).
func (h *Host) luaLog(L *lua.LState) int {
	level := parseLevel(L.CheckString(1))
	msg := L.CheckString(2)
	b := h.state.Bridge()
	var args []any
	for i := 3; i+1 <= L.GetTop(); i += 2 {
		args = append(args, L.CheckString(i), b.ToGoValue(L.Get(i+1)))
	}
	h.logger.Log(context.Background(), level, msg, args...)
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// queued returns a module function that performs op on the node id given as
// its argument after the current call returns.
func (h *Host) queued(name string, op func(ctx context.Context, id string) error) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		h.enqueue(name+" "+id, func(ctx context.Context) error {
			return op(ctx, id)
		})
		return 0
	}
}

// luaTrigger implements tree.trigger(name, payload). Payload tables reach Go
// listeners as map[string]any.
func (h *Host) luaTrigger(L *lua.LState) int {
	name := event.Name(L.CheckString(1))
	payload := h.state.Bridge().ToGoValue(L.Get(2))
	h.enqueue("trigger "+string(name), func(ctx context.Context) error {
		return h.tree.Trigger(ctx, name, payload)
	})
	return 0
}
