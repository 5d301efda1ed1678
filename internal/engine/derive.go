package engine

import (
	"context"
	"fmt"
	"path/filepath"
)

// derive runs the derivation rule of keyword and checks that it produced
// path. A rule that (transitively) needs its own output fails instead of
// recursing forever.
func (f *Folder) derive(ctx context.Context, keyword, path string) error {
	rule, ok := f.typ.Derivation(keyword)
	if !ok {
		return MissingFile.New("%s: %s is missing and %s folders cannot derive it",
			f.path, filepath.Base(path), f.typ.Name)
	}

	guard := f.path + "\x00" + keyword
	if f.eng.inflight[guard] {
		return MissingFile.New("%s: deriving %s with %s needs %s itself",
			f.path, keyword, rule.Algorithm, keyword)
	}
	f.eng.inflight[guard] = true
	defer delete(f.eng.inflight, guard)

	for _, w := range rule.When {
		if !f.Has(w) {
			return MissingFile.New("%s: %s is missing and cannot be derived without %s",
				f.path, filepath.Base(path), w)
		}
	}

	f.eng.cfg.Logger.Info("deriving missing file",
		"folder", f.path, "keyword", keyword, "algo", rule.Algorithm)

	res, err := f.Run(ctx, rule.Algorithm, nil, f.eng.cfg.Silent)
	if err != nil {
		return MissingFile.Wrap(fmt.Errorf("%s: deriving %s with %s: %w", f.path, keyword, rule.Algorithm, err))
	}
	if !isFile(path) {
		if res.ReturnCode != 0 {
			return MissingFile.New("%s: %s exited with code %d and did not write %s",
				f.path, rule.Algorithm, res.ReturnCode, filepath.Base(path))
		}
		return MissingFile.New("%s: %s did not write %s", f.path, rule.Algorithm, filepath.Base(path))
	}
	return nil
}
