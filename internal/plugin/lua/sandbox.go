package lua

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// safeModules are built-in modules require may always return.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	mu      sync.RWMutex
	allowed map[string]bool
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:       L,
		allowed: make(map[string]bool),
	}
}

// Install removes file loading functions and replaces require.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// Allow lets require load the preloaded module name.
func (s *Sandbox) Allow(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[name] = true
}

// Allowed reports whether require accepts name.
func (s *Sandbox) Allowed(name string) bool {
	if safeModules[name] {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowed[name]
}

// installSafeRequire clears the module search paths so nothing is read from
// disk, then wraps require with the allow list.
func (s *Sandbox) installSafeRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := s.L.GetGlobal("require")
	if original == lua.LNil {
		return
	}

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !s.Allowed(name) {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}
