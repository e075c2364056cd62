// Package script runs a user-supplied Lua predicate after the built-in
// suggestion filters.
//
// The script defines a global function
//
//	function filter(suggestion, ctx) return ok, reason end
//
// where ctx is a table with the fields line, before, after, kind,
// language, line_number and column. Returning false (or nil) rejects the
// suggestion. Scripts run in a reduced standard library without file or
// OS access; errors and timeouts accept the suggestion.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/ghostpad/internal/completion"
	"github.com/dshills/ghostpad/internal/logging"
)

// Name is the filter name reported in verdicts.
const Name = "script"

// DefaultTimeout bounds one filter call.
const DefaultTimeout = 50 * time.Millisecond

// FuncName is the global the script must define.
const FuncName = "filter"

var (
	// ErrNoFilterFunc is returned when the script defines no filter
	// function.
	ErrNoFilterFunc = errors.New("script defines no filter function")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("script filter closed")
)

// Option configures a Filter.
type Option func(*Filter)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Filter) {
		f.log = l.WithComponent("script")
	}
}

// Filter is a completion.Filter backed by a Lua state. gopher-lua states
// are not goroutine-safe, so calls are serialized.
type Filter struct {
	mu      sync.Mutex
	L       *lua.LState
	fn      *lua.LFunction
	source  string
	timeout time.Duration
	log     *logging.Logger
	closed  bool
}

// Load runs the script at path and returns its filter.
func Load(path string, opts ...Option) (*Filter, error) {
	return load(path, opts, func(L *lua.LState) error { return L.DoFile(path) })
}

// LoadString runs code, naming it source in errors and logs.
func LoadString(source, code string, opts ...Option) (*Filter, error) {
	return load(source, opts, func(L *lua.LState) error { return L.DoString(code) })
}

func load(source string, opts []Option, run func(*lua.LState) error) (*Filter, error) {
	f := &Filter{
		source:  source,
		timeout: DefaultTimeout,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.L = newState()
	if err := protect(func() error { return run(f.L) }); err != nil {
		f.L.Close()
		return nil, fmt.Errorf("loading %s: %w", source, err)
	}

	fn, ok := f.L.GetGlobal(FuncName).(*lua.LFunction)
	if !ok {
		f.L.Close()
		return nil, fmt.Errorf("%s: %w", source, ErrNoFilterFunc)
	}
	f.fn = fn
	return f, nil
}

// newState opens base, table, string and math, and removes the globals
// that load code from disk or strings.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Source returns the script path or name.
func (f *Filter) Source() string {
	return f.source
}

// Name implements completion.Filter.
func (f *Filter) Name() string {
	return Name
}

// Check implements completion.Filter.
func (f *Filter) Check(suggestion string, ctx completion.Context) (string, bool) {
	ok, reason, err := f.Eval(suggestion, ctx)
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			f.log.Warn("%s: %v", f.source, err)
		}
		return "", true
	}
	if !ok && reason == "" {
		reason = "rejected by " + f.source
	}
	return reason, ok
}

// Eval calls the script's filter function.
func (f *Filter) Eval(suggestion string, ctx completion.Context) (ok bool, reason string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return true, "", ErrClosed
	}

	cctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	f.L.SetContext(cctx)
	defer f.L.RemoveContext()

	top := f.L.GetTop()
	defer f.L.SetTop(top)

	err = protect(func() error {
		return f.L.CallByParam(lua.P{Fn: f.fn, NRet: 2, Protect: true},
			lua.LString(suggestion), f.contextTable(ctx))
	})
	if err != nil {
		return true, "", err
	}

	ok = lua.LVAsBool(f.L.Get(-2))
	if r := f.L.Get(-1); r != lua.LNil {
		reason = lua.LVAsString(r)
	}
	return ok, reason, nil
}

func (f *Filter) contextTable(ctx completion.Context) *lua.LTable {
	t := f.L.NewTable()
	f.L.SetField(t, "line", lua.LString(ctx.Line))
	f.L.SetField(t, "before", lua.LString(ctx.Before))
	f.L.SetField(t, "after", lua.LString(ctx.After))
	f.L.SetField(t, "kind", lua.LString(ctx.Kind.String()))
	f.L.SetField(t, "language", lua.LString(ctx.Language))
	f.L.SetField(t, "line_number", lua.LNumber(ctx.Position.Line))
	f.L.SetField(t, "column", lua.LNumber(ctx.Position.Column))
	return t
}

// Close releases the Lua state.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.L.Close()
}
