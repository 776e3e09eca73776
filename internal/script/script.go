// Package script embeds gopher-lua to drive the target façade from a
// batch file, the `cmd/dbgconsole` `script` command of spec.md §6.
//
// The teacher's own script command (debug_commands.go's cmdScript) is a
// flat line-by-line command replay with an 8-deep recursion guard — no
// expression language, no conditionals. This package keeps that shape for
// control flow (a bounded call depth, one statement at a time) but hands
// the statements to a real Lua interpreter instead of the line-oriented
// command parser, so a script can loop, branch, and compute addresses
// instead of only replaying fixed command lines.
package script

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/target"
	"github.com/chipdebug/core/internal/targetmgr"
)

// maxDepth mirrors the teacher's scriptDepth > 8 recursion guard
// (debug_commands.go cmdScript/executeMacro).
const maxDepth = 8

// Engine binds a Lua interpreter to a target registry, exposing halt,
// resume, poll, readmem, and writemem as Lua globals scoped by target name.
type Engine struct {
	L     *lua.LState
	reg   *targetmgr.Registry
	ctx   context.Context
	depth int
}

// New constructs an Engine bound to reg. ctx is captured for the lifetime
// of the engine since gopher-lua's C-call-style functions carry no context
// parameter of their own.
func New(ctx context.Context, reg *targetmgr.Registry) *Engine {
	e := &Engine{L: lua.NewState(), reg: reg, ctx: ctx}
	e.L.SetGlobal("halt", e.L.NewFunction(e.luaHalt))
	e.L.SetGlobal("resume", e.L.NewFunction(e.luaResume))
	e.L.SetGlobal("poll", e.L.NewFunction(e.luaPoll))
	e.L.SetGlobal("readmem", e.L.NewFunction(e.luaReadMem))
	e.L.SetGlobal("writemem", e.L.NewFunction(e.luaWriteMem))
	return e
}

// Close releases the Lua interpreter's resources.
func (e *Engine) Close() { e.L.Close() }

// RunFile executes a Lua script file, mirroring cmdScript's recursion
// guard: RunFile calling back into RunFile (via a script() global, not
// currently exposed) would be bounded the same way if it were added.
func (e *Engine) RunFile(path string) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxDepth {
		return dbgerr.New("script.run_file", dbgerr.KindResourceUnavailable, nil)
	}
	if err := e.L.DoFile(path); err != nil {
		return dbgerr.New("script.run_file", dbgerr.KindDeviceError, err)
	}
	return nil
}

func (e *Engine) lookup(name string) (target.Target, error) {
	return e.reg.Lookup(name)
}

// luaHalt implements Lua `halt(targetName)`.
func (e *Engine) luaHalt(L *lua.LState) int {
	name := L.CheckString(1)
	t, err := e.lookup(name)
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	if err := t.Halt(e.ctx); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// luaResume implements Lua `resume(targetName)`.
func (e *Engine) luaResume(L *lua.LState) int {
	name := L.CheckString(1)
	t, err := e.lookup(name)
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	if err := t.Resume(e.ctx, true, 0, false, false); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// luaPoll implements Lua `poll(targetName)`, returning the target's state
// string ("running", "halted", ...).
func (e *Engine) luaPoll(L *lua.LState) int {
	name := L.CheckString(1)
	t, err := e.lookup(name)
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	if err := t.Poll(e.ctx); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	L.Push(lua.LString(t.State().String()))
	return 1
}

// luaReadMem implements Lua `readmem(targetName, addr, size)`, returning
// the value as a Lua number.
func (e *Engine) luaReadMem(L *lua.LState) int {
	name := L.CheckString(1)
	addr := uint64(L.CheckNumber(2))
	size := int(L.CheckNumber(3))
	t, err := e.lookup(name)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	buf := make([]byte, size)
	if err := t.ReadMemory(e.ctx, addr, size, 1, buf); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	L.Push(lua.LNumber(v))
	L.Push(lua.LNil)
	return 2
}

// luaWriteMem implements Lua `writemem(targetName, addr, size, value)`.
func (e *Engine) luaWriteMem(L *lua.LState) int {
	name := L.CheckString(1)
	addr := uint64(L.CheckNumber(2))
	size := int(L.CheckNumber(3))
	value := uint64(L.CheckNumber(4))
	t, err := e.lookup(name)
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(value >> uint(i*8))
	}
	if err := t.WriteMemory(e.ctx, addr, size, 1, buf); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}
