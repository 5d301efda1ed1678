// Package template implements the parametric strings used for algorithm
// command lines and output folder names.
//
// A template is literal text with {name} placeholders:
//
//	{input} -o {output_file} -setnumber Mesh.CharacteristicLengthFactor {factor}
//
// Braces cannot be escaped or nested. Placeholder names are any run of
// characters other than braces and whitespace.
package template

import (
	"sort"
	"strings"
	"unicode"

	"github.com/zeebo/errs"
)

// TemplateError is the error class for malformed templates and failed
// substitutions.
var TemplateError = errs.Class("template")

type segment struct {
	text  string
	param bool
}

// Template is a parsed parametric string. The zero value renders to "".
type Template struct {
	raw      string
	segments []segment
	params   []string
}

// Parse splits s into literal and placeholder segments.
func Parse(s string) (*Template, error) {
	t := &Template{raw: s}
	seen := make(map[string]bool)

	var buf strings.Builder
	open := -1
	for i, r := range s {
		switch r {
		case '{':
			if open >= 0 {
				return nil, TemplateError.New("nested '{' at offset %d in %q", i, s)
			}
			if buf.Len() > 0 {
				t.segments = append(t.segments, segment{text: buf.String()})
				buf.Reset()
			}
			open = i
		case '}':
			if open < 0 {
				return nil, TemplateError.New("unbalanced '}' at offset %d in %q", i, s)
			}
			name := buf.String()
			buf.Reset()
			if name == "" {
				return nil, TemplateError.New("empty placeholder at offset %d in %q", open, s)
			}
			if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
				return nil, TemplateError.New("placeholder %q contains whitespace", name)
			}
			t.segments = append(t.segments, segment{text: name, param: true})
			if !seen[name] {
				seen[name] = true
				t.params = append(t.params, name)
			}
			open = -1
		default:
			buf.WriteRune(r)
		}
	}
	if open >= 0 {
		return nil, TemplateError.New("unclosed '{' at offset %d in %q", open, s)
	}
	if buf.Len() > 0 {
		t.segments = append(t.segments, segment{text: buf.String()})
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for literals in tests.
func MustParse(s string) *Template {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the source text.
func (t *Template) String() string {
	return t.raw
}

// Parameters returns placeholder names in order of first occurrence.
func (t *Template) Parameters() []string {
	return append([]string(nil), t.params...)
}

// Has reports whether name appears as a placeholder.
func (t *Template) Has(name string) bool {
	for _, p := range t.params {
		if p == name {
			return true
		}
	}
	return false
}

// Assemble substitutes every placeholder with its value.
//
// Every placeholder must be bound. In strict mode every key of values must
// also be a placeholder.
func (t *Template) Assemble(values map[string]string, strict bool) (string, error) {
	for _, p := range t.params {
		if _, ok := values[p]; !ok {
			return "", TemplateError.New("%s missing", p)
		}
	}
	if strict {
		var unknown []string
		for name := range values {
			if !t.Has(name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return "", TemplateError.New("unknown parameter %q", unknown[0])
		}
	}

	var out strings.Builder
	for _, seg := range t.segments {
		if seg.param {
			out.WriteString(values[seg.text])
		} else {
			out.WriteString(seg.text)
		}
	}
	return out.String(), nil
}
