// Package loader reads declarative resource files from disk.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Named is implemented by declarations. A declaration without a name takes
// the base name of the file it was read from.
type Named interface {
	ResourceName() string
	SetResourceName(name string)
}

// Loader reads declarations from <root>/<kind>/*.yaml (and *.yml).
// A file may hold several YAML documents, one declaration each.
type Loader struct {
	root string
}

// New creates a loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{root: dir}
}

// Load reads every declaration of kind, keyed by name. A missing kind
// directory yields an empty map. Unknown fields and duplicate names are errors.
func Load[T any, PT interface {
	*T
	Named
}](l *Loader, kind string) (map[string]*T, error) {
	dir := filepath.Join(l.root, kind)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("kind", kind).Str("dir", dir).Msg("No declarations directory")
		return map[string]*T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)

	out := make(map[string]*T)
	source := make(map[string]string)
	for _, path := range files {
		decls, err := decodeFile[T, PT](path)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			name := PT(d).ResourceName()
			if prev, dup := source[name]; dup {
				return nil, fmt.Errorf("%s %q declared in both %s and %s", kind, name, prev, path)
			}
			out[name] = d
			source[name] = path
		}
	}

	log.Debug().Str("kind", kind).Int("files", len(files)).Int("resources", len(out)).Msg("Loaded declarations")
	return out, nil
}

func decodeFile[T any, PT interface {
	*T
	Named
}](path string) ([]*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var out []*T
	for i := 0; ; i++ {
		var v T
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		p := PT(&v)
		if p.ResourceName() == "" {
			if i > 0 {
				return nil, fmt.Errorf("%s: document %d has no name", path, i+1)
			}
			p.SetResourceName(base)
		}
		out = append(out, &v)
	}
	return out, nil
}
