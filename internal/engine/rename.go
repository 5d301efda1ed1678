package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// RenameFile renames a file of the folder and records the rename in its
// log. Both names are relative to the folder; the target must not exist.
func (f *Folder) RenameFile(oldName, newName string) error {
	if err := renameIn(f.path, oldName, newName, f.eng.cfg.Clock); err != nil {
		return err
	}
	f.refresh()
	return nil
}

func renameIn(dir, oldName, newName string, clock provenance.Clock) error {
	for _, name := range []string{oldName, newName} {
		if name == "" || filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
			return Error.New("%s: %q is not a file name inside the folder", dir, name)
		}
	}
	from, to := filepath.Join(dir, oldName), filepath.Join(dir, newName)
	if !isFile(from) {
		return MissingFile.New("%s", from)
	}
	if _, err := os.Lstat(to); err == nil {
		return Error.New("cannot rename %s: %s already exists", from, to)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Error.Wrap(err)
	}
	if err := os.Rename(from, to); err != nil {
		return Error.Wrap(err)
	}
	_, err := provenance.Append(dir, clock, provenance.NewRename(oldName, newName))
	return err
}
