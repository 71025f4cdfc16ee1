package registry

import (
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/qnwis/qnwis/internal/query"
)

// Registry holds the loaded query specs, one per id.
type Registry struct {
	specs map[string]*query.Spec
	files map[string]string
	order []string
}

// Load walks root for .cue files and compiles each into a query spec.
// The first error stops the load: a spec corpus with any bad file is not
// trusted to serve queries.
func Load(root string) (*Registry, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, &RootNotFoundError{Root: root}
	}

	files, err := findCUEFiles(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &NoSpecsError{Root: root}
	}

	r := &Registry{
		specs: make(map[string]*query.Spec, len(files)),
		files: make(map[string]string, len(files)),
	}

	ctx := cuecontext.New()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &CompileError{File: file, Field: "file", Message: err.Error()}
		}

		v := ctx.CompileBytes(data, cue.Filename(file))
		spec, err := compileSpec(v, file)
		if err != nil {
			return nil, err
		}

		if prev, ok := r.files[spec.ID]; ok {
			return nil, &DuplicateSpecError{ID: spec.ID, File: file, PrevFile: prev}
		}
		r.specs[spec.ID] = spec
		r.files[spec.ID] = file
		r.order = append(r.order, spec.ID)
	}
	return r, nil
}

// findCUEFiles walks root and returns every .cue path. filepath.Walk
// visits lexically, so the order is deterministic.
func findCUEFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &CompileError{File: root, Field: "walk", Message: err.Error()}
	}
	return files, nil
}

// Get returns the spec for id. The returned pointer is the registry's own:
// read-only by contract, Clone before overriding.
func (r *Registry) Get(id string) (*query.Spec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, &SpecNotFoundError{ID: id}
	}
	return spec, nil
}

// IDs returns every loaded query id in registration order: the lexical
// walk order of the files they were compiled from.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len reports how many specs are loaded.
func (r *Registry) Len() int {
	return len(r.specs)
}

// File returns the path the spec for id was loaded from, for diagnostics.
func (r *Registry) File(id string) string {
	return r.files[id]
}
