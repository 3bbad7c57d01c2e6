package reducer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/track"
)

// DefaultTimeout bounds a single script run. Best-effort: Lua code is
// interrupted at the next instruction boundary.
const DefaultTimeout = 5 * time.Second

// Errors for reducer operations.
var (
	// ErrClosed is returned when operating on a closed reducer.
	ErrClosed = errors.New("reducer is closed")

	// ErrNoScript is returned by Run before a script was loaded.
	ErrNoScript = errors.New("no reducer script loaded")

	// ErrBadResult is returned when a script returns something other than
	// an array of 1-based point indices.
	ErrBadResult = errors.New("reducer script returned an invalid result")
)

// Reducer hosts a Lua point-simplification script.
//
// A script defines a global function
//
//	function reduce(points, tolerance) ... end
//
// receiving the segment's points as an array of {lat, lon, ele, time}
// tables (time is unix seconds, 0 when the point carries no timestamp) and
// returning the array of 1-based indices to keep, in ascending order. The
// host exposes dist(a, b) returning the great-circle distance in meters
// between two point tables.
//
// The Lua state is not goroutine-safe; all operations serialize on an
// internal mutex.
type Reducer struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	loaded  bool
	closed  bool
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithTimeout overrides the per-run execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reducer) { r.timeout = d }
}

// New creates a sandboxed reducer host. Only the base, table, string and
// math libraries are open; io, os, debug and package stay out, and the
// load family of functions is removed.
func New(opts ...Option) *Reducer {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("dist", L.NewFunction(luaDist))

	r := &Reducer{L: L, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadFile compiles and runs a script file; the script must leave a global
// reduce function behind.
func (r *Reducer) LoadFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("load reducer script: %w", err)
	}
	return r.checkLoaded()
}

// LoadString compiles and runs an inline script.
func (r *Reducer) LoadString(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("load reducer script: %w", err)
	}
	return r.checkLoaded()
}

func (r *Reducer) checkLoaded() error {
	if _, ok := r.L.GetGlobal("reduce").(*lua.LFunction); !ok {
		return errors.New("reducer script defines no reduce function")
	}
	r.loaded = true
	return nil
}

// Run hands points to the script and returns the kept subset. The input is
// never mutated; the result aliases no input storage.
func (r *Reducer) Run(points []track.Point, tolerance float64) ([]track.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if !r.loaded {
		return nil, ErrNoScript
	}

	arr := r.L.NewTable()
	for _, p := range points {
		arr.Append(pointToLua(r.L, p))
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	if err := r.L.CallByParam(lua.P{
		Fn:      r.L.GetGlobal("reduce"),
		NRet:    1,
		Protect: true,
	}, arr, lua.LNumber(tolerance)); err != nil {
		return nil, fmt.Errorf("run reducer script: %w", err)
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)

	return keepIndices(points, ret)
}

// Close releases the Lua state.
func (r *Reducer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}

func pointToLua(L *lua.LState, p track.Point) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "lat", lua.LNumber(p.Coord.Lat))
	L.SetField(t, "lon", lua.LNumber(p.Coord.Lon))
	L.SetField(t, "ele", lua.LNumber(p.Elevation))
	if p.Time.IsZero() {
		L.SetField(t, "time", lua.LNumber(0))
	} else {
		L.SetField(t, "time", lua.LNumber(p.Time.Unix()))
	}
	return t
}

// keepIndices maps the script's index array back onto the input points.
func keepIndices(points []track.Point, ret lua.LValue) ([]track.Point, error) {
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrBadResult, ret.Type())
	}

	var out []track.Point
	prev := 0
	var badIdx error
	tbl.ForEach(func(_, v lua.LValue) {
		if badIdx != nil {
			return
		}
		n, ok := v.(lua.LNumber)
		if !ok {
			badIdx = fmt.Errorf("%w: index of type %s", ErrBadResult, v.Type())
			return
		}
		i := int(n)
		if i < 1 || i > len(points) || i <= prev {
			badIdx = fmt.Errorf("%w: index %d out of order or range", ErrBadResult, i)
			return
		}
		prev = i
		out = append(out, points[i-1])
	})
	if badIdx != nil {
		return nil, badIdx
	}
	return out, nil
}

// luaDist is the dist(a, b) host function: great-circle meters between two
// point tables.
func luaDist(L *lua.LState) int {
	a := L.CheckTable(1)
	b := L.CheckTable(2)
	d := geo.Distance(luaCoord(L, a), luaCoord(L, b))
	L.Push(lua.LNumber(d))
	return 1
}

func luaCoord(L *lua.LState, t *lua.LTable) geo.Coord {
	return geo.Coord{
		Lat: float64(lua.LVAsNumber(L.GetField(t, "lat"))),
		Lon: float64(lua.LVAsNumber(L.GetField(t, "lon"))),
	}
}
