package algorithm

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/hexmeshworkshop/dds/internal/template"
)

//go:embed schema.cue
var schemaSource string

// schema checks descriptor documents against #Descriptor.
type schema struct {
	ctx *cue.Context
	def cue.Value
}

func newSchema() (*schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, DescriptorError.New("schema: %v", err)
	}
	return &schema{ctx: ctx, def: v.LookupPath(cue.ParsePath("#Descriptor"))}, nil
}

// check validates the YAML document in data. filename is used in positions.
func (s *schema) check(filename string, data []byte) error {
	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return formatCUEError(err)
	}
	doc := s.ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}
	if err := s.def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError flattens a CUE error list into one line per problem, each
// prefixed by its position when known.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}
	msgs := make([]string, 0, len(list))
	for _, e := range list {
		msg := e.Error()
		if pos := cueerrors.Positions(e); len(pos) > 0 && pos[0].IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), msg)
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// decode parses one descriptor. The document is checked against the CUE
// schema first, then decoded strictly into a Descriptor.
func (s *schema) decode(name, filename string, data []byte) (*Descriptor, error) {
	if err := s.check(filename, data); err != nil {
		return nil, DescriptorError.New("%s: %v", name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, DescriptorError.New("%s: empty descriptor", name)
		}
		return nil, DescriptorError.New("%s: %v", name, err)
	}
	d.Name = name

	args, err := template.Parse(d.Arguments)
	if err != nil {
		return nil, DescriptorError.New("%s: arguments: %v", name, err)
	}
	d.args = args

	if d.NameTemplate != "" {
		nt, err := template.Parse(d.NameTemplate)
		if err != nil {
			return nil, DescriptorError.New("%s: name_template: %v", name, err)
		}
		d.name = nt
	}
	if d.WorkingDirectory == "" {
		d.WorkingDirectory = WorkDirOutput
	}
	if d.Parameters == nil {
		d.Parameters = make(map[string]Parameter)
	}
	for pname, p := range d.Parameters {
		if p.Type == "" {
			if p.Input != "" || p.Output != "" || p.Scratch {
				p.Type = TypePath
			} else {
				p.Type = TypeString
			}
			d.Parameters[pname] = p
		}
	}
	return &d, nil
}
