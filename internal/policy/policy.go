// Package policy evaluates a Lua script that can veto sync operations.
//
// The script may define a global function:
//
//	function allow(kind, name, changes) ... end
//
// changes is an array of tables with fields text, label, added and unmanaged.
// Returning false skips the resource. A script without allow permits
// everything.
package policy

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cloudsync/internal/diff"
)

const allowFunc = "allow"

// Guard is a reconcile.Guard backed by a single Lua state.
// gopher-lua states are not goroutine safe, so calls are serialized.
type Guard struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// Load executes the script at path and returns a guard for it.
func Load(path string) (*Guard, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy script: %w", err)
	}
	log.Info().Str("path", path).Msg("Loading policy script")
	return LoadString(string(src))
}

// LoadString executes src and returns a guard for it.
func LoadString(src string) (*Guard, error) {
	L := lua.NewState()
	L.PreloadModule("log", logLoader)

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to execute policy script: %w", err)
	}

	g := &Guard{L: L}
	switch fn := L.GetGlobal(allowFunc).(type) {
	case *lua.LFunction:
		g.fn = fn
	case *lua.LNilType:
		log.Debug().Msg("Policy script defines no allow function, permitting all changes")
	default:
		L.Close()
		return nil, fmt.Errorf("policy global %q must be a function, got %s", allowFunc, fn.Type())
	}
	return g, nil
}

// Allow calls the script's allow function for one resource.
func (g *Guard) Allow(ctx context.Context, kind, name string, diffs []diff.Diff) (bool, error) {
	if g == nil || g.fn == nil {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.L.SetContext(ctx)
	defer g.L.RemoveContext()

	g.L.Push(g.fn)
	g.L.Push(lua.LString(kind))
	g.L.Push(lua.LString(name))
	g.L.Push(g.changesTable(diffs))
	if err := g.L.PCall(3, 1, nil); err != nil {
		return false, fmt.Errorf("policy %s %q: %w", kind, name, err)
	}

	ret := g.L.Get(-1)
	g.L.Pop(1)

	switch v := ret.(type) {
	case lua.LBool:
		if !bool(v) {
			log.Info().Str("kind", kind).Str("name", name).Msg("Policy vetoed sync")
		}
		return bool(v), nil
	case *lua.LNilType:
		// no explicit answer
		return true, nil
	default:
		return false, fmt.Errorf("policy %s %q: allow returned %s, want boolean", kind, name, ret.Type())
	}
}

// Close releases the Lua state.
func (g *Guard) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.L.Close()
}

func (g *Guard) changesTable(diffs []diff.Diff) *lua.LTable {
	tbl := g.L.CreateTable(len(diffs), 0)
	for _, d := range diffs {
		entry := g.L.CreateTable(0, 4)
		entry.RawSetString("text", lua.LString(d.Render()))
		entry.RawSetString("label", lua.LString(label(d)))
		entry.RawSetString("added", lua.LBool(d.IsAdded()))
		entry.RawSetString("unmanaged", lua.LBool(d.IsUnmanaged()))
		tbl.Append(entry)
	}
	return tbl
}

type labeled interface {
	Vocabulary() *diff.Vocabulary
}

func label(d diff.Diff) string {
	if l, ok := d.(labeled); ok && l.Vocabulary() != nil {
		return l.Vocabulary().Label(d.Kind())
	}
	return ""
}
