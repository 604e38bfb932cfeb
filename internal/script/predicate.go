// Package script compiles content-authored Lua snippets into custom
// requirement predicates. Snippets run in a sandboxed VM with only the base,
// table, string and math libraries and read player and quest state through a
// ctx table.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
)

// DefaultTimeout bounds a single predicate evaluation
const DefaultTimeout = 50 * time.Millisecond

// newSandbox builds the VM one evaluation runs in. Every call gets its own
// state, so globals and library tables a snippet changes are gone afterwards.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	return L
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the VM or break determinism.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring", "require",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "print", "module", "setfenv", "getfenv",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}
	if mathTbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		mathTbl.RawSetString("random", lua.LNil)
		mathTbl.RawSetString("randomseed", lua.LNil)
	}
}

// Predicate is a compiled Lua snippet usable as a behavior.Predicate.
// The snippet's return value is converted with Lua truthiness.
type Predicate struct {
	name    string
	proto   *lua.FunctionProto
	timeout time.Duration
}

var _ behavior.Predicate = (*Predicate)(nil)

// Compile parses source once. A snippet without a return statement is treated
// as an expression, so "ctx.level >= 3" and "return ctx.level >= 3" are equivalent.
func Compile(name, source string) (*Predicate, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, errors.New("empty script")
	}

	chunk, err := parse.Parse(strings.NewReader("return "+src), name)
	if err != nil {
		chunk, err = parse.Parse(strings.NewReader(src), name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Predicate{name: name, proto: proto, timeout: DefaultTimeout}, nil
}

// WithTimeout returns a copy of p using the given evaluation timeout
func (p *Predicate) WithTimeout(d time.Duration) *Predicate {
	cp := *p
	cp.timeout = d
	return &cp
}

func (p *Predicate) Name() string { return p.name }

// Eval runs the snippet against st in a fresh sandbox. Nothing a snippet
// does survives the call.
func (p *Predicate) Eval(st behavior.State) (bool, error) {
	L := newSandbox()
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("ctx", buildContext(L, st))
	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("script %s timed out after %s", p.name, p.timeout)
		}
		return false, fmt.Errorf("script %s: %w", p.name, err)
	}
	return lua.LVAsBool(L.Get(-1)), nil
}

// buildContext exposes a read-only view of st to the script
func buildContext(L *lua.LState, st behavior.State) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("level", lua.LNumber(st.PlayerLevel()))
	tbl.RawSetString("class", lua.LString(st.PlayerClass()))

	ev := st.Event()
	evt := L.NewTable()
	evt.RawSetString("kind", lua.LString(ev.Kind.String()))
	evt.RawSetString("source", lua.LString(ev.SourceID))
	evt.RawSetString("payload", lua.LString(ev.Payload))
	evt.RawSetString("player", lua.LString(ev.PlayerID))
	tbl.RawSetString("event", evt)

	// ctx.step(quest) returns the step, or nil when the quest is not active.
	tbl.RawSetString("step", L.NewFunction(func(L *lua.LState) int {
		step, ok := st.QuestStep(L.CheckString(1))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(step))
		return 1
	}))

	// ctx.achieved(quest [, goal]) checks one goal, or every goal when omitted.
	tbl.RawSetString("achieved", L.NewFunction(func(L *lua.LState) int {
		goal := L.OptInt(2, behavior.AllGoals)
		achieved, ok, err := st.GoalAchieved(L.CheckString(1), goal)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(lua.LBool(ok && achieved))
		return 1
	}))

	tbl.RawSetString("var", L.NewFunction(func(L *lua.LState) int {
		v, ok := st.Var(L.CheckString(1))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(v))
		return 1
	}))

	return tbl
}
