package hooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/provenance"
	"github.com/hexmeshworkshop/dds/internal/settings"
	"github.com/hexmeshworkshop/dds/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type env struct {
	t     *testing.T
	root  string
	tools string
	eng   *engine.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{t: t, root: filepath.Join(base, "data"), tools: filepath.Join(base, "tools")}
	require.NoError(t, os.MkdirAll(e.root, 0o755))

	paths := map[string]string{settings.DataFolderKey: e.root}
	for _, name := range []string{"automatic_polycube", "evocube", "marchinghex", "robustPolycube"} {
		paths[name] = filepath.Join(e.tools, name)
	}
	data, err := json.Marshal(map[string]any{"paths": paths})
	require.NoError(t, err)
	s, err := settings.Parse(data)
	require.NoError(t, err)

	types, err := foldertype.Builtin()
	require.NoError(t, err)
	algos, err := algorithm.Builtin(types)
	require.NoError(t, err)
	reg := engine.NewHookRegistry()
	Register(reg)

	e.eng, err = engine.New(engine.Config{
		Settings:   s,
		Types:      types,
		Algorithms: algos,
		Hooks:      reg,
		Clock:      testutil.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
		IDs:        testutil.NewSequentialIDs("hook"),
		Logger:     discard,
		Stdout:     io.Discard,
		Stderr:     io.Discard,
		TempDir:    t.TempDir(),
		Silent:     true,
	})
	require.NoError(t, err)
	return e
}

func (e *env) tool(ref, body string) {
	e.t.Helper()
	path := filepath.Join(e.tools, filepath.FromSlash(ref))
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func (e *env) file(rel, content string) {
	e.t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *env) open(rel string) *engine.Folder {
	e.t.Helper()
	f, err := e.eng.Open(filepath.Join(e.root, filepath.FromSlash(rel)))
	require.NoError(e.t, err)
	return f
}

func TestRegister_CoversEveryDeclaredHook(t *testing.T) {
	e := newEnv(t)
	reg := engine.NewHookRegistry()
	Register(reg)

	algos := e.eng.Algorithms()
	for _, name := range algos.Names() {
		d, err := algos.Get(name)
		require.NoError(t, err)
		_, pre := reg.Pre(name)
		_, post := reg.Post(name)
		assert.Equal(t, d.PreProcessing, pre, "%s pre-processing", name)
		assert.Equal(t, d.PostProcessing, post, "%s post-processing", name)
	}
}

func TestExtractSurface_RefusesOtherVariant(t *testing.T) {
	e := newEnv(t)
	e.tool("automatic_polycube/extract_surface", `echo s > "$2"; echo 0 > "$3"`)
	e.file("M1/tet.mesh", "MeshVersionFormatted 2")
	e.file("M1/surface_and_volume.mesh", "MeshVersionFormatted 2")
	tet := e.open("M1")

	_, err := tet.Run(context.Background(), "extract_surface", nil, true)
	require.Error(t, err)
	assert.True(t, engine.HookError.Has(err))
	assert.Contains(t, err.Error(), "extract_surface+volume already ran")
	assert.NoFileExists(t, filepath.Join(tet.Path(), "surface.obj"))

	e.file("M2/tet.mesh", "MeshVersionFormatted 2")
	e.file("M2/surface.obj", "o surface")
	_, err = e.open("M2").Run(context.Background(), "extract_surface+volume", nil, true)
	require.Error(t, err)
	assert.True(t, engine.HookError.Has(err))
}

func TestEvocube(t *testing.T) {
	e := newEnv(t)
	e.tool("evocube", `cp "$2/tris_to_tets.txt" "$2/seen_map.txt"
echo "+X" > "$2/labeling.txt"
echo "-X" > "$2/labeling_init.txt"
echo "{}" > "$2/logs.json"
echo "o polycube" > "$2/fast_polycube_surf.obj"`)
	e.file("M1/tet.mesh", "MeshVersionFormatted 2")
	e.file("M1/surface.obj", "o surface")
	e.file("M1/surface_map.txt", "12 triangles\n13 tetrahedra\n\n")
	tet := e.open("M1")

	res, err := tet.Run(context.Background(), "evocube", nil, true)
	require.NoError(t, err)
	require.NotNil(t, res.Output)
	assert.Equal(t, "labeling", res.Output.Type().Name)

	out := res.OutputPath
	for _, name := range []string{"surface_labeling.txt", "initial_surface_labeling.txt", "evocube.logs.json", "fastbndpolycube.obj"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	for _, name := range []string{"labeling.txt", "logs.json", "tris_to_tets.txt"} {
		assert.NoFileExists(t, filepath.Join(out, name))
	}
	seen, err := os.ReadFile(filepath.Join(out, "seen_map.txt"))
	require.NoError(t, err)
	assert.Equal(t, "12\n13\n", string(seen))
}

func TestStatsPost_RenamesStdout(t *testing.T) {
	e := newEnv(t)
	e.tool("automatic_polycube/mesh_stats", `echo '{"vertices": 5}'`)
	e.file("M1/tet.mesh", "MeshVersionFormatted 2")
	tet := e.open("M1")

	v, err := tet.QueryStats(context.Background(), "tet_mesh", "$.vertices")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(5)}, v)
	assert.NoFileExists(t, filepath.Join(tet.Path(), "mesh_stats.stdout.txt"))

	l, err := tet.InfoDict()
	require.NoError(t, err)
	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "mesh_stats", entries[0].Entry.Algorithm)
	assert.Equal(t, "mesh_stats.stdout.txt", entries[0].Entry.Stdout)
	assert.Equal(t, provenance.NewRename("mesh_stats.stdout.txt", "tet_mesh.stats.json"), entries[1].Entry)
}

func TestStatsPost_FailedRunWritesNothing(t *testing.T) {
	e := newEnv(t)
	e.tool("automatic_polycube/mesh_stats", "echo partial; exit 2")
	e.file("M1/tet.mesh", "MeshVersionFormatted 2")
	tet := e.open("M1")

	_, err := tet.Stats(context.Background(), "tet_mesh")
	require.Error(t, err)
	assert.True(t, engine.MissingFile.Has(err))
	assert.FileExists(t, filepath.Join(tet.Path(), "mesh_stats.stdout.txt"))
}

func TestStatsPost_LabelingStats(t *testing.T) {
	e := newEnv(t)
	e.tool("automatic_polycube/labeling_stats", `echo '{"charts": {"invalid": 0}, "boundaries": {"invalid": 1}, "corners": {"invalid": 0}, "turning-points": {"nb": 2}}'`)
	e.file("M1/tet.mesh", "MeshVersionFormatted 2")
	e.file("M1/surface.obj", "o surface")
	e.file("M1/naive_labeling/surface_labeling.txt", "0\n")
	labeling := e.open("M1/naive_labeling")
	ctx := context.Background()

	valid, err := labeling.HasValidLabeling(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.FileExists(t, filepath.Join(labeling.Path(), "labeling.stats.json"))
	assert.NoFileExists(t, filepath.Join(labeling.Path(), "labeling_stats.stdout.txt"))

	n, err := labeling.NbTurningPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDebugPost_MarchinghexHexmeshing(t *testing.T) {
	for _, keep := range []bool{false, true} {
		t.Run(map[bool]string{false: "delete", true: "keep"}[keep], func(t *testing.T) {
			e := newEnv(t)
			e.tool("marchinghex/marchinghex_hexmeshing", `echo hex > "$3"
echo d > dist_tet_mesh.mesh
echo r > mh_result.mesh
echo i > iter_3.mesh
echo x > unrelated.txt`)
			e.file("M1/tet.mesh", "MeshVersionFormatted 2")
			e.file("M1/marchinghex_1/grid.mesh", "MeshVersionFormatted 2")
			grid := e.open("M1/marchinghex_1")

			args := map[string]string{}
			if keep {
				args["keep_debug_files"] = "true"
			}
			_, err := grid.Run(context.Background(), "marchinghex_hexmeshing", args, true)
			require.NoError(t, err)
			assert.Equal(t, "hex-mesh", grid.Type().Name)

			dir := grid.Path()
			for _, name := range []string{"dist_tet_mesh.mesh", "mh_result.mesh", "iter_3.mesh"} {
				assert.NoFileExists(t, filepath.Join(dir, name))
				if keep {
					assert.FileExists(t, filepath.Join(dir, "marchinghex_hexmeshing."+name))
				} else {
					assert.NoFileExists(t, filepath.Join(dir, "marchinghex_hexmeshing."+name))
				}
			}
			assert.FileExists(t, filepath.Join(dir, "unrelated.txt"))
		})
	}
}

func TestDebugPost_PrefixFromOthers(t *testing.T) {
	e := newEnv(t)
	e.file("M1/hex.mesh", "MeshVersionFormatted 2")
	e.file("M1/global_padding/hex.mesh", "MeshVersionFormatted 2")
	e.file("M1/global_padding/debug_volume_0.geogram", "g")
	e.file("M1/global_padding/view.lua", "lua")
	subject := e.open("M1")
	out := filepath.Join(e.root, "M1", "global_padding")

	d, err := e.eng.Algorithms().Get("global_padding")
	require.NoError(t, err)
	hc := &engine.HookContext{
		Algorithm: d,
		Subject:   subject,
		Output:    out,
		WorkDir:   out,
		Others:    map[string]any{"keep_debug_files": true, "debug_prefix": "rb_perform_postprocessing"},
		Logger:    discard,
	}
	require.NoError(t, debugPost("global_padding", debugFiles["global_padding"])(context.Background(), hc, nil))

	assert.FileExists(t, filepath.Join(out, "rb_perform_postprocessing.debug_volume_0.geogram"))
	assert.FileExists(t, filepath.Join(out, "rb_perform_postprocessing.view.lua"))
	assert.NoFileExists(t, filepath.Join(out, "debug_volume_0.geogram"))
}

func TestMatchAll(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"debug_a.geogram", "debug_b.txt", "view.lua"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "debug_dir"), 0o755))

	got, err := matchAll(dir, []string{"debug_*", "debug_*.geogram"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "debug_a.geogram"), filepath.Join(dir, "debug_b.txt")}, got)
}

func TestMove_RefusesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("b"), 0o644))

	require.Error(t, move(src, dst))
	require.NoError(t, os.Remove(dst))
	require.NoError(t, move(src, dst))
	assert.NoFileExists(t, src)
}

func TestCopyAndRemove(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o640))

	require.NoError(t, copyAndRemove(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.NoFileExists(t, src)
}
