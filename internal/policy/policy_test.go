package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dokzlo13/cloudsync/internal/diff"
)

var (
	testVocab = diff.NewVocabulary("thing", diff.NewAllocator(1))
	kindColor = testVocab.Declare("color")
)

type thingDiff struct {
	diff.Change[string, string]
}

func (d thingDiff) Render() string {
	switch d.Kind() {
	case testVocab.Unmanaged:
		return "thing is not managed"
	case testVocab.Added:
		return "thing will be created"
	case kindColor:
		return "color: " + d.Remote + " -> " + d.Local
	default:
		panic(d.Unhandled())
	}
}

func colorChange(from, to string) diff.Diff {
	return thingDiff{diff.NewChange(testVocab, kindColor, from, to)}
}

func addedChange() diff.Diff {
	return thingDiff{diff.NewChange(testVocab, testVocab.Added, "", "x")}
}

const protectProd = `
function allow(kind, name, changes)
  if string.find(name, "^prod%-") then
    for _, c in ipairs(changes) do
      if not c.added then
        return false
      end
    end
  end
  return true
end
`

func TestGuard_Allow(t *testing.T) {
	g, err := LoadString(protectProd)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer g.Close()

	tests := []struct {
		name     string
		resource string
		diffs    []diff.Diff
		want     bool
	}{
		{"non-prod change", "dev-a", []diff.Diff{colorChange("red", "blue")}, true},
		{"prod creation", "prod-a", []diff.Diff{addedChange()}, true},
		{"prod change", "prod-a", []diff.Diff{colorChange("red", "blue")}, false},
		{"prod no changes", "prod-a", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Allow(context.Background(), "thing", tt.resource, tt.diffs)
			if err != nil {
				t.Fatalf("Allow() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuard_ChangeFields(t *testing.T) {
	g, err := LoadString(`
function allow(kind, name, changes)
  local c = changes[1]
  return kind == "thing" and c.label == "color" and c.text == "color: red -> blue" and not c.unmanaged
end
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer g.Close()

	ok, err := g.Allow(context.Background(), "thing", "a", []diff.Diff{colorChange("red", "blue")})
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !ok {
		t.Error("Allow() = false, want fields to be passed through")
	}
}

func TestGuard_NoAllowFunction(t *testing.T) {
	g, err := LoadString(`local log = require("log"); log.info("loaded", {source = "test"})`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer g.Close()

	ok, err := g.Allow(context.Background(), "thing", "a", []diff.Diff{colorChange("a", "b")})
	if err != nil || !ok {
		t.Errorf("Allow() = %v, %v; want true, nil", ok, err)
	}
}

func TestGuard_NilGuardAllows(t *testing.T) {
	var g *Guard
	ok, err := g.Allow(context.Background(), "thing", "a", nil)
	if err != nil || !ok {
		t.Errorf("Allow() = %v, %v; want true, nil", ok, err)
	}
}

func TestGuard_Errors(t *testing.T) {
	if _, err := LoadString(`this is not lua`); err == nil {
		t.Error("LoadString() with syntax error succeeded")
	}
	if _, err := LoadString(`allow = 42`); err == nil {
		t.Error("LoadString() with non-function allow succeeded")
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"runtime error", `function allow() error("boom") end`, "boom"},
		{"non boolean", `function allow() return "yes" end`, "want boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := LoadString(tt.src)
			if err != nil {
				t.Fatalf("LoadString() error = %v", err)
			}
			defer g.Close()

			_, err = g.Allow(context.Background(), "thing", "a", nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Allow() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.lua")
	if err := os.WriteFile(path, []byte(`function allow() return false end`), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer g.Close()

	ok, err := g.Allow(context.Background(), "thing", "a", nil)
	if err != nil || ok {
		t.Errorf("Allow() = %v, %v; want false, nil", ok, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}
