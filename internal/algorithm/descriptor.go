// Package algorithm loads the descriptors of the external tools that can be
// run on data folders.
//
// A descriptor is a YAML document naming the tool, the folder type it runs
// on, the command-line template and the parameters that fill it. Descriptors
// are validated structurally against an embedded CUE schema, decoded
// strictly into Go structs, then checked against the folder-type registry.
package algorithm

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/zeebo/errs"

	"github.com/hexmeshworkshop/dds/internal/provenance"
	"github.com/hexmeshworkshop/dds/internal/template"
)

var (
	// DescriptorError is the error class for invalid descriptors.
	DescriptorError = errs.Class("algorithm descriptor")

	// ParameterError is the error class for bad run arguments.
	ParameterError = errs.Class("parameter")

	// NotFound is returned for unknown algorithm names.
	NotFound = errs.Class("unknown algorithm")
)

// Kind is the algorithm flavour.
type Kind string

const (
	Generative            Kind = "generative"
	Transformative        Kind = "transformative"
	InteractiveGenerative Kind = "interactive-generative"
)

// CreatesFolder reports whether runs of this kind may create a child folder.
func (k Kind) CreatesFolder() bool {
	return k == Generative || k == InteractiveGenerative
}

// Marker returns the provenance marker recorded for runs of this kind.
func (k Kind) Marker() string {
	switch k {
	case Generative:
		return provenance.KeyGenerative
	case InteractiveGenerative:
		return provenance.KeyInteractiveGenerative
	default:
		return provenance.KeyTransformative
	}
}

// ParamType is the declared type of a parameter value.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
	TypePath   ParamType = "path"
)

// Parameter declares one placeholder of the command line.
type Parameter struct {
	Type        ParamType `yaml:"type,omitempty"`
	Default     any       `yaml:"default,omitempty"`
	Input       string    `yaml:"input,omitempty"`
	Output      string    `yaml:"output,omitempty"`
	FromType    string    `yaml:"from_type,omitempty"`
	Scratch     bool      `yaml:"scratch,omitempty"`
	Description string    `yaml:"description,omitempty"`
}

// Bound reports whether the runner supplies the value (file keyword or
// scratch directory) rather than the caller.
func (p Parameter) Bound() bool {
	return p.Input != "" || p.Output != "" || p.Scratch
}

// Coerce parses a command-line value according to the parameter type.
func (p Parameter) Coerce(raw string) (any, error) {
	switch p.Type {
	case TypeInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", raw)
		}
		return v, nil
	case TypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", raw)
		}
		return v, nil
	case TypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// normalize converts a YAML default to the Go type Coerce would produce.
func (p Parameter) normalize(v any) (any, error) {
	switch p.Type {
	case TypeInt:
		if i, ok := v.(int); ok {
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case int, float64, bool:
			return Stringify(s), nil
		}
	}
	return nil, fmt.Errorf("default %v does not match type %s", v, p.Type)
}

// Stringify renders a parameter value for substitution in a template.
// Floats use the shortest exact form (0.1, not 0.100000).
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Descriptor describes one external algorithm.
type Descriptor struct {
	Name string `yaml:"-"`

	Kind             Kind                 `yaml:"kind"`
	Description      string               `yaml:"description,omitempty"`
	InputFolderType  string               `yaml:"input_folder_type"`
	OutputFolderType string               `yaml:"output_folder_type,omitempty"`
	Executable       string               `yaml:"executable"`
	Arguments        string               `yaml:"arguments"`
	NameTemplate     string               `yaml:"name_template,omitempty"`
	InsideSubfolder  []string             `yaml:"inside_subfolder,omitempty"`
	Parameters       map[string]Parameter `yaml:"parameters,omitempty"`
	Others           map[string]any       `yaml:"others,omitempty"`
	PreProcessing    bool                 `yaml:"pre_processing,omitempty"`
	PostProcessing   bool                 `yaml:"post_processing,omitempty"`
	WorkingDirectory string               `yaml:"working_directory,omitempty"`

	args *template.Template
	name *template.Template
}

// Working directory choices.
const (
	WorkDirOutput  = "output"
	WorkDirSubject = "subject"
	WorkDirScratch = "scratch"
)

// ArgumentsTemplate returns the parsed command-line template.
func (d *Descriptor) ArgumentsTemplate() *template.Template {
	return d.args
}

// OutputNameTemplate returns the parsed output folder name template, or nil
// when the algorithm creates no folder.
func (d *Descriptor) OutputNameTemplate() *template.Template {
	return d.name
}

// CreatesFolder reports whether a run produces a child folder.
func (d *Descriptor) CreatesFolder() bool {
	return d.Kind.CreatesFolder() && d.name != nil
}

// Captured reports whether runs are captured and recorded. Interactive
// algorithms that create no folder run attached to the terminal and leave
// no trace.
func (d *Descriptor) Captured() bool {
	return !(d.Kind == InteractiveGenerative && d.name == nil)
}

// ParameterNames returns declared parameter names, sorted.
func (d *Descriptor) ParameterNames() []string {
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inside reports whether name is rewritten into the output folder.
func (d *Descriptor) Inside(name string) bool {
	for _, n := range d.InsideSubfolder {
		if n == name {
			return true
		}
	}
	return false
}

// KeepDebugFiles returns others.keep_debug_files, false when unset.
func (d *Descriptor) KeepDebugFiles() bool {
	keep, _ := d.Others["keep_debug_files"].(bool)
	return keep
}

// Default returns the normalized default of a parameter, if any.
func (d *Descriptor) Default(name string) (any, bool) {
	p, ok := d.Parameters[name]
	if !ok || p.Default == nil {
		return nil, false
	}
	v, err := p.normalize(p.Default)
	if err != nil {
		return nil, false
	}
	return v, true
}
