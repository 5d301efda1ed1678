package engine

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// UnknownType labels subfolders that no type claims.
const UnknownType = "?"

// Child is a subfolder listed by ListChildren.
type Child struct {
	Path string
	Type string

	// Algorithm is the generative algorithm recorded in the child's log,
	// empty for folders created by hand. It is read whether or not the
	// child has a type.
	Algorithm string

	// Depth is 1 for direct children.
	Depth int
}

// ListChildren lists subfolders, sorted by path. typeFilter and algoFilter,
// when non-empty, keep only children of that type or generated by that
// algorithm. With recursive, typed subfolders are descended into; an
// untyped folder is listed but its content is not.
func (f *Folder) ListChildren(typeFilter, algoFilter string, recursive bool) ([]Child, error) {
	var out []Child
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name()[0] == '.' {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			c := Child{
				Path:      path,
				Type:      UnknownType,
				Algorithm: generativeAlgorithmOf(path),
				Depth:     depth,
			}
			if t, err := f.eng.cfg.Types.Infer(path); err == nil {
				c.Type = t.Name
			}
			if (typeFilter == "" || c.Type == typeFilter) && (algoFilter == "" || c.Algorithm == algoFilter) {
				out = append(out, c)
			}
			if recursive && c.Type != UnknownType {
				if err := walk(path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(f.path, 1); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// SubfoldersGeneratedBy returns the direct children whose log records a
// generative run of algo.
func (f *Folder) SubfoldersGeneratedBy(algo string) ([]*Folder, error) {
	children, err := f.ListChildren("", "", false)
	if err != nil {
		return nil, err
	}
	var out []*Folder
	for _, c := range children {
		if c.Type == UnknownType {
			continue
		}
		child, err := f.eng.Open(c.Path)
		if err != nil {
			return nil, err
		}
		l, err := child.InfoDict()
		if err != nil {
			return nil, err
		}
		if l.HasGenerative(algo) {
			out = append(out, child)
		}
	}
	return out, nil
}

// ClosestParentOfType walks up from the folder's parent to the nearest
// ancestor of type typeName, stopping at the data root. The folder itself
// is never returned.
func (f *Folder) ClosestParentOfType(typeName string) (*Folder, error) {
	if _, ok := f.eng.cfg.Types.Get(typeName); !ok {
		return nil, foldertype.NoMatchingType.New("unknown type %q", typeName)
	}
	dir := f.path
	for dir != f.eng.root {
		dir = filepath.Dir(dir)
		if t, err := f.eng.cfg.Types.Infer(dir); err == nil && t.Name == typeName {
			return &Folder{eng: f.eng, path: dir, typ: t}, nil
		}
	}
	return nil, MissingFile.New("no %s folder above %s", typeName, f.path)
}

func generativeAlgorithmOf(dir string) string {
	l, err := provenance.Load(dir)
	if err != nil {
		return ""
	}
	return l.GenerativeAlgorithm()
}
