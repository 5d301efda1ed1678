package hooks

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/hexmeshworkshop/dds/internal/engine"
)

// debugFiles lists, per algorithm, the glob patterns of the debug files its
// executable leaves in the working directory.
var debugFiles = map[string][]string{
	"marchinghex_hexmeshing": {
		"dist_hex_mesh.mesh",
		"dist_hex_sampling.geogram",
		"dist_tet_mesh.mesh",
		"dist_tet_sampling.geogram",
		"mh_result.mesh",
		"iter_*",
	},
	"global_padding":           {"debug_*.geogram", "view.lua"},
	"rb_generate_deformation":  {"debug_*.geogram"},
	"rb_generate_quantization": {"debug_*.geogram", "view.lua"},
	"fastbndpolycube":          {"debug_*"},
	"polycube_withHexEx":       {"debug_*"},
}

// debugPost relocates the debug files of algo into the destination folder,
// prefixed with the tool name, when others.keep_debug_files is set, and
// deletes them otherwise. The prefix defaults to algo and can be changed
// with others.debug_prefix.
func debugPost(algo string, patterns []string) engine.PostHook {
	return func(_ context.Context, hc *engine.HookContext, _ engine.Bag) error {
		prefix := hc.OtherString("debug_prefix")
		if prefix == "" {
			prefix = algo
		}
		files, err := matchAll(hc.WorkDir, patterns)
		if err != nil {
			return err
		}
		keep := hc.KeepDebugFiles()
		for _, src := range files {
			if keep {
				dst := filepath.Join(hc.Destination(), prefix+"."+filepath.Base(src))
				if err := move(src, dst); err != nil {
					return err
				}
				continue
			}
			if err := os.Remove(src); err != nil {
				return Error.Wrap(err)
			}
		}
		if len(files) > 0 {
			hc.Logger.Debug("debug files handled", "count", len(files), "kept", keep)
		}
		return nil
	}
}

// matchAll returns the regular files of dir matching any pattern, sorted
// and without duplicates.
func matchAll(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if info, err := os.Lstat(m); err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
