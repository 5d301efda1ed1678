package engine

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// legacyNames maps filenames written by older versions of the tools to the
// current canonical names.
var legacyNames = map[string]string{
	"tetra.mesh":              "tet.mesh",
	"tet.vtk":                 "tet_mesh.vtk",
	"tetra_labeling.txt":      "volume_labeling.txt",
	"preprocessed.tetra.mesh": "preprocessed.tet.mesh",
	"hex.ovm":                 "hex_mesh.ovm",
}

// stepType is the folder type created by ImportStep.
const stepType = "step"

// ImportStep copies a CAD file into a new step folder at rel, relative to
// the data root. Missing parent directories are created; the folder itself
// must not exist.
func (e *Engine) ImportStep(stepFile, rel string) (*Folder, error) {
	t, ok := e.cfg.Types.Get(stepType)
	if !ok {
		return nil, Error.New("no %s folder type registered", stepType)
	}
	name, err := t.Filename("STEP")
	if err != nil {
		return nil, err
	}
	dir, err := e.Resolve(filepath.Join(e.root, rel))
	if err != nil {
		return nil, err
	}
	if dir == e.root {
		return nil, Error.New("cannot import into the data root itself")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, OutputAlreadyExists.New("%s", dir)
		}
		return nil, Error.Wrap(err)
	}
	if err := copyFile(stepFile, filepath.Join(dir, name)); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	e.cfg.Logger.Info("imported CAD model", "folder", dir, "from", stepFile)
	return e.Open(dir)
}

// RecursiveUpdate renames legacy filenames everywhere below the data root,
// recording each rename in the folder's log. It returns the number of files
// renamed. A legacy file whose current name already exists is left alone.
func (e *Engine) RecursiveUpdate() (int, error) {
	var dirs []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != e.root && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}

	olds := make([]string, 0, len(legacyNames))
	for old := range legacyNames {
		olds = append(olds, old)
	}
	sort.Strings(olds)

	renamed := 0
	for _, dir := range dirs {
		for _, old := range olds {
			if !isFile(filepath.Join(dir, old)) {
				continue
			}
			target := legacyNames[old]
			if _, err := os.Lstat(filepath.Join(dir, target)); err == nil {
				e.cfg.Logger.Warn("legacy file not renamed, target exists", "folder", dir, "file", old, "target", target)
				continue
			}
			if err := renameIn(dir, old, target, e.cfg.Clock); err != nil {
				return renamed, err
			}
			e.cfg.Logger.Info("renamed legacy file", "folder", dir, "from", old, "to", target)
			renamed++
		}
	}
	return renamed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return Error.Wrap(err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return Error.Wrap(err)
	}
	return Error.Wrap(out.Close())
}
