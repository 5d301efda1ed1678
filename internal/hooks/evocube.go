package hooks

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
)

// trisToTets is where evocube expects the surface map, inside its output
// directory.
const trisToTets = "tris_to_tets.txt"

// evocubeRenames maps evocube's hard-coded output names to keywords of the
// output folder type.
var evocubeRenames = map[string]string{
	"logs.json":              "LABELING_LOGS_JSON",
	"labeling.txt":           "SURFACE_LABELING_TXT",
	"labeling_init.txt":      "INITIAL_SURFACE_LABELING_TXT",
	"labeling_on_tets.txt":   "VOLUME_LABELING_TXT",
	"fast_polycube_surf.obj": "POLYCUBE_SURFACE_MESH_OBJ",
}

// evocubePre writes the surface map without its annotations (first column
// only) into the scratch directory evocube writes to.
func evocubePre(ctx context.Context, hc *engine.HookContext) (engine.Bag, error) {
	src, err := hc.Subject.GetFile(ctx, "SURFACE_MAP_TXT", true)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer in.Close()

	dst := filepath.Join(hc.Scratch, trisToTets)
	out, err := os.Create(dst)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		w.WriteString(fields[0])
		w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		out.Close()
		return nil, Error.Wrap(err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return nil, Error.Wrap(err)
	}
	if err := out.Close(); err != nil {
		return nil, Error.Wrap(err)
	}
	hc.Logger.Debug("wrote surface map for evocube", "file", dst)
	return engine.Bag{"tris_to_tets": dst}, nil
}

// evocubePost moves evocube's results from the scratch directory into the
// output folder under their canonical names.
func evocubePost(_ context.Context, hc *engine.HookContext, bag engine.Bag) error {
	if hc.Output == "" {
		return Error.New("evocube has no output folder")
	}
	if p, ok := bag["tris_to_tets"].(string); ok {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return Error.Wrap(err)
		}
	}

	outType, ok := outputType(hc)
	if !ok {
		return Error.New("evocube: unknown output type %q", hc.Algorithm.OutputFolderType)
	}
	entries, err := os.ReadDir(hc.Scratch)
	if err != nil {
		return Error.Wrap(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == trisToTets {
			continue
		}
		target := name
		if kw, renamed := evocubeRenames[name]; renamed {
			if target, err = outType.Filename(kw); err != nil {
				return err
			}
		}
		if err := move(filepath.Join(hc.Scratch, name), filepath.Join(hc.Output, target)); err != nil {
			return err
		}
	}
	return nil
}

func outputType(hc *engine.HookContext) (*foldertype.Type, bool) {
	if hc.Output == "" {
		return hc.Subject.Type(), true
	}
	return hc.Subject.Engine().Types().Get(hc.Algorithm.OutputFolderType)
}
