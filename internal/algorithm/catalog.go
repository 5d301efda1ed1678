package algorithm

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/foldertype"
)

//go:embed descriptors/*.yml
var builtinFS embed.FS

// Catalog maps algorithm names to descriptors.
type Catalog struct {
	types  *foldertype.Registry
	schema *schema
	byName map[string]*Descriptor
}

// NewCatalog returns an empty catalog checked against types.
func NewCatalog(types *foldertype.Registry) (*Catalog, error) {
	s, err := newSchema()
	if err != nil {
		return nil, err
	}
	return &Catalog{types: types, schema: s, byName: make(map[string]*Descriptor)}, nil
}

// Builtin returns the validated catalog of built-in descriptors, extended
// or overridden by the *.yml files of extraDirs.
func Builtin(types *foldertype.Registry, extraDirs ...string) (*Catalog, error) {
	c, err := NewCatalog(types)
	if err != nil {
		return nil, err
	}
	if err := c.LoadFS(builtinFS, "descriptors"); err != nil {
		return nil, err
	}
	for _, dir := range extraDirs {
		if err := c.LoadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFS decodes every *.yml of dir. The algorithm name is the file stem.
// A descriptor replaces any previously loaded one of the same name.
func (c *Catalog) LoadFS(fsys fs.FS, dir string) error {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yml"))
	if err != nil {
		return DescriptorError.Wrap(err)
	}
	sort.Strings(files)
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return DescriptorError.Wrap(err)
		}
		name := strings.TrimSuffix(path.Base(file), ".yml")
		d, err := c.schema.decode(name, file, data)
		if err != nil {
			return err
		}
		c.byName[name] = d
	}
	return nil
}

// Add decodes data as the descriptor of name, replacing any existing one.
func (c *Catalog) Add(name string, data []byte) error {
	d, err := c.schema.decode(name, name+".yml", data)
	if err != nil {
		return err
	}
	c.byName[name] = d
	return nil
}

// Get returns the named descriptor.
func (c *Catalog) Get(name string) (*Descriptor, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, NotFound.New("%q", name)
	}
	return d, nil
}

// Names returns every algorithm name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForType returns the descriptors whose input folder type is typeName,
// sorted by name. An empty typeName selects all.
func (c *Catalog) ForType(typeName string) []*Descriptor {
	var out []*Descriptor
	for _, name := range c.Names() {
		d := c.byName[name]
		if typeName == "" || d.InputFolderType == typeName {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks every descriptor against the type registry and the
// derivation tables of every type against the catalog. Derivation rules
// must form a DAG.
func (c *Catalog) Validate() error {
	var problems []string
	for _, name := range c.Names() {
		for _, p := range c.validateDescriptor(c.byName[name]) {
			problems = append(problems, name+": "+p)
		}
	}
	for _, typeName := range c.types.Names() {
		t, _ := c.types.Get(typeName)
		for _, kw := range t.Keywords() {
			d, ok := t.Derivation(kw)
			if !ok {
				continue
			}
			algo, found := c.byName[d.Algorithm]
			switch {
			case !found:
				problems = append(problems, fmt.Sprintf("type %s: derivation of %s uses unknown algorithm %q", typeName, kw, d.Algorithm))
			case algo.Kind != Transformative:
				problems = append(problems, fmt.Sprintf("type %s: derivation of %s uses %s algorithm %q", typeName, kw, algo.Kind, d.Algorithm))
			case algo.InputFolderType != typeName:
				problems = append(problems, fmt.Sprintf("type %s: derivation of %s uses %q, which runs on %s", typeName, kw, d.Algorithm, algo.InputFolderType))
			}
		}
	}
	if len(problems) > 0 {
		return DescriptorError.New("%s", strings.Join(problems, "; "))
	}
	if cycles := c.derivationCycles(); len(cycles) > 0 {
		return DescriptorError.New("derivation cycle: %s", strings.Join(cycles[0], " -> "))
	}
	return nil
}

func (c *Catalog) validateDescriptor(d *Descriptor) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	in, ok := c.types.Get(d.InputFolderType)
	if !ok {
		add("input_folder_type %q is not a registered type", d.InputFolderType)
	}

	var out *foldertype.Type
	switch {
	case d.Kind == Transformative:
		if d.OutputFolderType != "" {
			add("transformative algorithms have no output_folder_type")
		}
		if d.NameTemplate != "" {
			add("transformative algorithms have no name_template")
		}
		if len(d.InsideSubfolder) > 0 {
			add("transformative algorithms have no inside_subfolder")
		}
	case d.NameTemplate != "" || d.Kind == Generative:
		if out, ok = c.types.Get(d.OutputFolderType); !ok {
			add("output_folder_type %q is not a registered type", d.OutputFolderType)
		}
	}

	for _, p := range d.args.Parameters() {
		if _, declared := d.Parameters[p]; !declared {
			add("arguments: placeholder {%s} is not a declared parameter", p)
		}
	}
	if d.name != nil {
		for _, p := range d.name.Parameters() {
			switch {
			case !d.args.Has(p):
				add("name_template: {%s} must appear in arguments", p)
			case d.Inside(p):
				add("name_template: {%s} cannot be inside_subfolder", p)
			case d.Parameters[p].Bound():
				add("name_template: {%s} is a file parameter", p)
			}
		}
	}
	for _, p := range d.InsideSubfolder {
		if !d.args.Has(p) {
			add("inside_subfolder: %s must appear in arguments", p)
		}
	}

	for _, pname := range d.ParameterNames() {
		p := d.Parameters[pname]
		if !d.args.Has(pname) {
			add("parameter %s is not used in arguments", pname)
		}
		roles := 0
		for _, set := range []bool{p.Input != "", p.Output != "", p.Scratch} {
			if set {
				roles++
			}
		}
		if roles > 1 {
			add("parameter %s: input, output and scratch are exclusive", pname)
		}
		if p.Bound() && p.Default != nil {
			add("parameter %s: file parameters take no default", pname)
		}
		if p.Default != nil {
			if _, err := p.normalize(p.Default); err != nil {
				add("parameter %s: %v", pname, err)
			}
		}
		if p.FromType != "" && p.Input == "" {
			add("parameter %s: from_type applies to input parameters only", pname)
		}

		if p.Input != "" {
			src := in
			if p.FromType != "" {
				src, ok = c.types.Get(p.FromType)
				if !ok {
					add("parameter %s: from_type %q is not a registered type", pname, p.FromType)
				}
			}
			if src != nil && !src.HasKeyword(p.Input) {
				add("parameter %s: %s has no keyword %s", pname, src.Name, p.Input)
			}
		}
		if p.Output != "" {
			dst := in
			if d.CreatesFolder() {
				dst = out
				if !d.Inside(pname) {
					add("parameter %s: outputs of folder-creating algorithms must be inside_subfolder", pname)
				}
			}
			if dst != nil && !dst.HasKeyword(p.Output) {
				add("parameter %s: %s has no keyword %s", pname, dst.Name, p.Output)
			}
		}
	}
	return problems
}
