package foldertype

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed types/*.yml
var builtinFS embed.FS

// Registry maps type names to types. It is built once at startup and only
// read afterwards.
type Registry struct {
	types map[string]*Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Builtin returns the registry of the built-in types, validated.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(builtinFS, "types", builtinOps); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFS registers every *.yml definition found in dir, pairing each with
// ops[name] when present.
func (r *Registry) LoadFS(fsys fs.FS, dir string, ops map[string]Ops) error {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yml"))
	if err != nil {
		return DefinitionError.Wrap(err)
	}
	sort.Strings(files)
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return DefinitionError.Wrap(err)
		}
		def, err := ParseDefinition(data)
		if err != nil {
			return DefinitionError.New("%s: %v", file, err)
		}
		if err := r.Register(*def, ops[def.Name]); err != nil {
			return err
		}
	}
	return nil
}

// ParseDefinition decodes one YAML type definition. Unknown fields are
// rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty definition")
		}
		return nil, err
	}
	if def.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return &def, nil
}

// Register adds a type. Names must be unique.
func (r *Registry) Register(def Definition, ops Ops) error {
	if _, dup := r.types[def.Name]; dup {
		return DefinitionError.New("type %q registered twice", def.Name)
	}
	r.types[def.Name] = &Type{Definition: def, ops: ops}
	return nil
}

// Get returns the named type.
func (r *Registry) Get(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	return sortedKeys(r.types)
}

// Infer returns the single type claiming dir. It never modifies dir.
func (r *Registry) Infer(dir string) (*Type, error) {
	var candidates []string
	for _, name := range r.Names() {
		if r.types[name].Claims(dir) {
			candidates = append(candidates, name)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, NoMatchingType.New("%s", dir)
	case 1:
		return r.types[candidates[0]], nil
	default:
		return nil, AmbiguousType.Wrap(&AmbiguousTypeError{Path: dir, Candidates: candidates})
	}
}

// Validate checks that every keyword a type refers to is declared in its
// filename table.
func (r *Registry) Validate() error {
	var problems []string
	for _, name := range r.Names() {
		t := r.types[name]
		if len(t.DistinctiveContent) == 0 {
			problems = append(problems, fmt.Sprintf("%s: distinctive_content is empty", name))
		}
		check := func(field, kw string) {
			if !t.HasKeyword(kw) {
				problems = append(problems, fmt.Sprintf("%s: %s names undeclared keyword %s", name, field, kw))
			}
		}
		for _, kw := range t.DistinctiveContent {
			check("distinctive_content", kw)
		}
		for _, kw := range t.ExcludedContent {
			check("excluded_content", kw)
		}
		for _, kw := range sortedKeys(t.Derivations) {
			check("derivations", kw)
			d := t.Derivations[kw]
			if d.Algorithm == "" {
				problems = append(problems, fmt.Sprintf("%s: derivation of %s has no algorithm", name, kw))
			}
			for _, w := range d.When {
				check("derivations."+kw+".when", w)
			}
		}
		for _, acc := range sortedKeys(t.Stats) {
			check("stats."+acc, t.Stats[acc])
		}
		if acc := t.CheckedStats(); acc != "" {
			if _, ok := t.Stats[acc]; !ok {
				problems = append(problems, fmt.Sprintf("%s: stats predicate reads undeclared accessor %q", name, acc))
			}
		}
		if t.DefaultView != "" {
			if _, ok := t.Views[t.DefaultView]; !ok {
				problems = append(problems, fmt.Sprintf("%s: default_view %q is not a view", name, t.DefaultView))
			}
		}
	}
	if len(problems) > 0 {
		return DefinitionError.New("%s", strings.Join(problems, "; "))
	}
	return nil
}
