package engine

import (
	"context"
	"sort"
	"strconv"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
)

// keepDebugFilesArg may be passed to any run to override
// others.keep_debug_files.
const keepDebugFilesArg = "keep_debug_files"

// binding is the parameter record of one run before path rewriting.
type binding struct {
	values map[string]any
	others map[string]any
}

// bind checks caller arguments against the descriptor, coerces them, fills
// in defaults and resolves input keywords to files (deriving them if
// needed). Output and scratch parameters are left for the runner.
func (f *Folder) bind(ctx context.Context, d *algorithm.Descriptor, args map[string]string) (*binding, error) {
	b := &binding{
		values: make(map[string]any, len(d.Parameters)),
		others: make(map[string]any, len(d.Others)+1),
	}
	for k, v := range d.Others {
		b.others[k] = v
	}

	for _, name := range sortedArgNames(args) {
		raw := args[name]
		p, declared := d.Parameters[name]
		switch {
		case !declared && name == keepDebugFilesArg:
			keep, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, algorithm.ParameterError.New("%s: %s=%q is not a bool", d.Name, name, raw)
			}
			b.others[keepDebugFilesArg] = keep
		case !declared:
			return nil, algorithm.ParameterError.New("%s has no parameter %q", d.Name, name)
		case p.Bound():
			return nil, algorithm.ParameterError.New("%s: parameter %q is a file and cannot be set", d.Name, name)
		default:
			v, err := p.Coerce(raw)
			if err != nil {
				return nil, algorithm.ParameterError.New("%s: %s: %v", d.Name, name, err)
			}
			b.values[name] = v
		}
	}

	for _, name := range d.ParameterNames() {
		p := d.Parameters[name]
		switch {
		case p.Input != "":
			src := f
			if p.FromType != "" {
				parent, err := f.ClosestParentOfType(p.FromType)
				if err != nil {
					return nil, err
				}
				src = parent
			}
			path, err := src.GetFile(ctx, p.Input, true)
			if err != nil {
				return nil, err
			}
			b.values[name] = path
		case p.Bound():
		default:
			if _, set := b.values[name]; set {
				continue
			}
			v, ok := d.Default(name)
			if !ok {
				return nil, algorithm.ParameterError.New("%s: parameter %q is required", d.Name, name)
			}
			b.values[name] = v
		}
	}
	return b, nil
}

// rendered renders every bound value for template substitution.
func (b *binding) rendered(quote bool) map[string]string {
	out := make(map[string]string, len(b.values))
	for name, v := range b.values {
		s := algorithm.Stringify(v)
		if quote {
			s = shellQuote(s)
		}
		out[name] = s
	}
	return out
}

func sortedArgNames(args map[string]string) []string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
