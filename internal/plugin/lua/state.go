package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds every entry into the interpreter.
const DefaultExecutionTimeout = 5 * time.Second

// State wraps gopher-lua for plugin execution.
//
// gopher-lua's LState is not goroutine-safe. Every method locks the State, so
// Go code may call in from any goroutine, but a Go function invoked by Lua
// must not call back into the same State.
type State struct {
	L *lua.LState

	mu               sync.Mutex
	executionTimeout time.Duration
	sandbox          *Sandbox
	bridge           *Bridge
	closed           bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the timeout applied to each call into Lua. Zero
// disables it.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		executionTimeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	state.L = L
	openSafeLibraries(L)

	state.sandbox = NewSandbox(L)
	state.sandbox.Install()
	state.bridge = NewBridge(L)

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries. io, os and
// debug are never opened.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoFile executes a Lua file.
func (s *State) DoFile(path string) error {
	return s.run(func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	return s.run(func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Call calls a global Lua function. It returns ErrNotFunction when the
// global is missing or not callable.
func (s *State) Call(name string, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.run(func(L *lua.LState) error {
		fn, ok := L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		var err error
		results, err = pcall(L, fn, args)
		return err
	})
	return results, err
}

// CallFunction calls a Lua function value.
func (s *State) CallFunction(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	if fn == nil {
		return nil, ErrNotFunction
	}
	var results []lua.LValue
	err := s.run(func(L *lua.LState) error {
		var err error
		results, err = pcall(L, fn, args)
		return err
	})
	return results, err
}

// Invoke is CallFunction for Go values. Arguments and results are converted
// through the bridge while the State is locked.
func (s *State) Invoke(fn *lua.LFunction, args ...any) ([]any, error) {
	if fn == nil {
		return nil, ErrNotFunction
	}
	var out []any
	err := s.run(func(L *lua.LState) error {
		results, err := pcall(L, fn, s.toLua(args))
		if err != nil {
			return err
		}
		out = s.toGo(results)
		return nil
	})
	return out, err
}

// InvokeGlobal is Invoke for the global function name.
func (s *State) InvokeGlobal(name string, args ...any) ([]any, error) {
	var out []any
	err := s.run(func(L *lua.LState) error {
		fn, ok := L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		results, err := pcall(L, fn, s.toLua(args))
		if err != nil {
			return err
		}
		out = s.toGo(results)
		return nil
	})
	return out, err
}

func (s *State) toLua(args []any) []lua.LValue {
	values := make([]lua.LValue, len(args))
	for i, a := range args {
		values[i] = s.bridge.ToLuaValue(a)
	}
	return values
}

func (s *State) toGo(values []lua.LValue) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = s.bridge.ToGoValue(v)
	}
	return out
}

// HasFunction reports whether the global name is a function.
func (s *State) HasFunction(name string) bool {
	return s.GetGlobal(name).Type() == lua.LTFunction
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// PreloadModule makes name available to require.
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.PreloadModule(name, loader)
	s.sandbox.Allow(name)
}

// Bridge returns the value converter bound to this state.
func (s *State) Bridge() *Bridge {
	return s.bridge
}

// Close releases the interpreter. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

func (s *State) run(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	if s.executionTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
		defer func() {
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

func pcall(L *lua.LState, fn *lua.LFunction, args []lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := range n {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}
