package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/jp"

	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// Folder is a directory of the data root together with its inferred type.
type Folder struct {
	eng  *Engine
	path string
	typ  *foldertype.Type

	info  *provenance.Log
	stats map[string]any
}

// Open infers the type of the directory at path. The path must exist and be
// inside the data root.
func (e *Engine) Open(path string) (*Folder, error) {
	abs, err := e.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !info.IsDir() {
		return nil, Error.New("%s is not a directory", abs)
	}
	typ, err := e.cfg.Types.Infer(abs)
	if err != nil {
		return nil, err
	}
	return &Folder{eng: e, path: abs, typ: typ}, nil
}

// Path returns the absolute path.
func (f *Folder) Path() string {
	return f.path
}

// Engine returns the engine the folder was opened with.
func (f *Folder) Engine() *Engine {
	return f.eng
}

// Type returns the folder type.
func (f *Folder) Type() *foldertype.Type {
	return f.typ
}

func (f *Folder) String() string {
	return f.eng.Rel(f.path) + " (" + f.typ.Name + ")"
}

// Check runs the type's validity predicates: the content check, then the
// stats check, which computes the stats file when it is missing.
func (f *Folder) Check(ctx context.Context) error {
	if err := f.typ.Check(f.path); err != nil {
		return err
	}
	accessor := f.typ.CheckedStats()
	if accessor == "" {
		return nil
	}
	stats, err := f.Stats(ctx, accessor)
	if err != nil {
		return err
	}
	return f.typ.CheckStats(stats)
}

// refresh drops cached state after the folder content changed. The type is
// re-inferred; a folder that no longer matches any type keeps its old one.
func (f *Folder) refresh() {
	f.info = nil
	f.stats = nil
	typ, err := f.eng.cfg.Types.Infer(f.path)
	if err != nil {
		f.eng.cfg.Logger.Warn("folder type no longer inferable, keeping previous type",
			"folder", f.path, "type", f.typ.Name, "error", err)
		return
	}
	if typ != f.typ {
		f.eng.cfg.Logger.Info("folder type changed", "folder", f.path, "from", f.typ.Name, "to", typ.Name)
		f.typ = typ
	}
}

// GetFile returns the absolute path of keyword inside the folder. With
// mustExist, a missing file is derived when the type knows how; otherwise
// MissingFile is returned.
func (f *Folder) GetFile(ctx context.Context, keyword string, mustExist bool) (string, error) {
	name, err := f.typ.Filename(keyword)
	if err != nil {
		return "", err
	}
	path := filepath.Join(f.path, name)
	if !mustExist || isFile(path) {
		return path, nil
	}
	if err := f.derive(ctx, keyword, path); err != nil {
		return "", err
	}
	return path, nil
}

// Has reports whether the file of keyword exists, without deriving it.
func (f *Folder) Has(keyword string) bool {
	name, err := f.typ.Filename(keyword)
	if err != nil {
		return false
	}
	return isFile(filepath.Join(f.path, name))
}

// InfoDict returns the provenance log, loaded once and cached until the next
// run on this folder.
func (f *Folder) InfoDict() (*provenance.Log, error) {
	if f.info == nil {
		l, err := provenance.Load(f.path)
		if err != nil {
			return nil, err
		}
		f.info = l
	}
	return f.info, nil
}

// DatetimeKeyOf returns the earliest provenance key recording algo.
func (f *Folder) DatetimeKeyOf(algo string) (string, bool, error) {
	l, err := f.InfoDict()
	if err != nil {
		return "", false, err
	}
	key, ok := l.EarliestOf(algo)
	return key, ok, nil
}

// Stats loads the JSON stats file behind accessor, deriving it if needed.
// The decoded document is cached per folder.
func (f *Folder) Stats(ctx context.Context, accessor string) (any, error) {
	if v, ok := f.stats[accessor]; ok {
		return v, nil
	}
	kw, err := f.typ.StatsKeyword(accessor)
	if err != nil {
		return nil, err
	}
	path, err := f.GetFile(ctx, kw, true)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, Error.New("%s: %v", path, err)
	}
	if f.stats == nil {
		f.stats = make(map[string]any)
	}
	f.stats[accessor] = v
	return v, nil
}

// QueryStats evaluates a JSONPath expression (e.g. "$.cells.quality.min")
// against the stats behind accessor.
func (f *Folder) QueryStats(ctx context.Context, accessor, expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, Error.New("jsonpath %q: %v", expr, err)
	}
	v, err := f.Stats(ctx, accessor)
	if err != nil {
		return nil, err
	}
	return x.Get(v), nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
