// Package luafilter is a key filter that runs a user Lua script over
// fetched and persisted keysets.
//
// The script may define two global functions:
//
//	transform(name, value) -- applied to each key after fetch
//	restore(name, value)   -- applied to each key before persist
//
// A function returns the new value as a string or number, or nil to keep
// the key unchanged. Scripts run in a sandboxed interpreter with only the
// base, table, string, and math libraries and no file or module loading.
package luafilter

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/plugin"
)

// Script entry points.
const (
	fnTransform = "transform"
	fnRestore   = "restore"
)

// ErrFilterClosed is returned when using a closed filter.
var ErrFilterClosed = errors.New("lua filter is closed")

// ScriptError reports a failure inside the user script.
type ScriptError struct {
	// Phase is the entry point that failed ("transform" or "restore").
	Phase string
	// Key is the key being filtered when the script failed.
	Key string
	// Err is the underlying Lua error.
	Err error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua %s failed on %q: %v", e.Phase, e.Key, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Filter implements plugin.KeyFilter by delegating to a Lua script.
//
// gopher-lua's LState is not goroutine-safe, so all script calls are
// serialized through a mutex.
type Filter struct {
	mu     sync.Mutex
	state  *lua.LState
	closed bool
}

// New compiles script into a sandboxed interpreter.
func New(script string) (*Filter, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}

	// Remove the escape hatches the base library leaves open.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "print"} {
		L.SetGlobal(name, lua.LNil)
	}

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, &ScriptError{Phase: "load", Err: err}
	}
	return &Filter{state: L}, nil
}

// AfterFetch applies the script's transform function to every key.
func (f *Filter) AfterFetch(ks *keyset.KeySet) error {
	return f.apply(fnTransform, ks)
}

// BeforePersist applies the script's restore function to every key.
func (f *Filter) BeforePersist(ks *keyset.KeySet) error {
	return f.apply(fnRestore, ks)
}

// Close releases the interpreter. Further calls fail with ErrFilterClosed.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.state.Close()
}

func (f *Filter) apply(phase string, ks *keyset.KeySet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFilterClosed
	}

	fn := f.state.GetGlobal(phase)
	if fn == lua.LNil {
		return nil
	}

	for _, k := range ks.Keys() {
		if err := f.call(phase, fn, k); err != nil {
			return err
		}
	}
	return nil
}

// call invokes one script function on one key with panic recovery.
func (f *Filter) call(phase string, fn lua.LValue, k *keyset.Key) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = &ScriptError{Phase: phase, Key: k.Name(), Err: v}
			default:
				err = &ScriptError{Phase: phase, Key: k.Name(), Err: fmt.Errorf("%v", v)}
			}
		}
	}()

	L := f.state
	L.Push(fn)
	L.Push(lua.LString(k.Name()))
	L.Push(lua.LString(k.Value()))
	if perr := L.PCall(2, 1, nil); perr != nil {
		return &ScriptError{Phase: phase, Key: k.Name(), Err: perr}
	}

	ret := L.Get(-1)
	L.Pop(1)
	switch v := ret.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		k.SetValue(string(v))
		return nil
	case lua.LNumber:
		k.SetValue(v.String())
		return nil
	default:
		return &ScriptError{
			Phase: phase,
			Key:   k.Name(),
			Err:   fmt.Errorf("returned %s, want string, number, or nil", ret.Type()),
		}
	}
}

var _ plugin.KeyFilter = (*Filter)(nil)
