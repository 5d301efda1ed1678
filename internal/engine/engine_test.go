package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/settings"
	"github.com/hexmeshworkshop/dds/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// fixture is a data root with fake tools. Tool scripts are written below
// tools/ and resolved through the settings like real executables.
type fixture struct {
	t     *testing.T
	root  string
	tools string
	clock *testutil.FakeClock
	hooks *HookRegistry
	out   syncBuffer
	eng   *Engine
}

// syncBuffer is written by the stdout and stderr copiers of a subprocess at
// the same time.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	fx := &fixture{
		t:     t,
		root:  filepath.Join(base, "data"),
		tools: filepath.Join(base, "tools"),
		clock: testutil.NewFakeClock(epoch),
	}
	require.NoError(t, os.MkdirAll(fx.root, 0o755))
	require.NoError(t, os.MkdirAll(fx.tools, 0o755))

	types, err := foldertype.Builtin()
	require.NoError(t, err)
	algos, err := algorithm.Builtin(types)
	require.NoError(t, err)

	fx.hooks = NewHookRegistry()
	noopHooks(fx.hooks, algos)

	fx.eng = fx.newEngine(types, algos)
	return fx
}

func (fx *fixture) newEngine(types *foldertype.Registry, algos *algorithm.Catalog) *Engine {
	fx.t.Helper()
	paths := map[string]string{settings.DataFolderKey: fx.root}
	for _, name := range []string{"AlgoHex", "Gmsh", "Graphite", "HexBox", "Mayo", "automatic_polycube", "evocube", "marchinghex", "ovm.io", "robustPolycube", "tool"} {
		paths[name] = filepath.Join(fx.tools, name)
	}
	data, err := json.Marshal(map[string]any{"paths": paths})
	require.NoError(fx.t, err)
	s, err := settings.Parse(data)
	require.NoError(fx.t, err)

	eng, err := New(Config{
		Settings:   s,
		Types:      types,
		Algorithms: algos,
		Hooks:      fx.hooks,
		Clock:      fx.clock,
		IDs:        testutil.NewSequentialIDs("run"),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdin:      bytes.NewReader(nil),
		Stdout:     &fx.out,
		Stderr:     &fx.out,
		TempDir:    filepath.Join(filepath.Dir(fx.root), "tmp"),
	})
	require.NoError(fx.t, err)
	require.NoError(fx.t, os.MkdirAll(eng.cfg.TempDir, 0o755))
	return eng
}

// noopHooks satisfies every declared hook so descriptors run without the
// production hooks.
func noopHooks(r *HookRegistry, algos *algorithm.Catalog) {
	for _, name := range algos.Names() {
		d, _ := algos.Get(name)
		if d.PreProcessing {
			r.RegisterPre(name, func(context.Context, *HookContext) (Bag, error) { return nil, nil })
		}
		if d.PostProcessing {
			r.RegisterPost(name, func(context.Context, *HookContext, Bag) error { return nil })
		}
	}
}

// tool writes an executable shell script at tools/ref.
func (fx *fixture) tool(ref, body string) {
	fx.t.Helper()
	path := filepath.Join(fx.tools, filepath.FromSlash(ref))
	require.NoError(fx.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(fx.t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

// file writes content at rel below the data root.
func (fx *fixture) file(rel, content string) string {
	fx.t.Helper()
	path := filepath.Join(fx.root, filepath.FromSlash(rel))
	require.NoError(fx.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(fx.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (fx *fixture) open(rel string) *Folder {
	fx.t.Helper()
	f, err := fx.eng.Open(filepath.Join(fx.root, filepath.FromSlash(rel)))
	require.NoError(fx.t, err)
	return f
}

// gmshTool writes the file following -o.
const gmshTool = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
echo "meshing to $out"
echo "MeshVersionFormatted 2" > "$out"`

// extractSurfaceTool writes its second and third arguments.
const extractSurfaceTool = `echo "o surface" > "$2"
echo "0 12" > "$3"`

func TestNew_RequiresExistingDataRoot(t *testing.T) {
	types, err := foldertype.Builtin()
	require.NoError(t, err)
	algos, err := algorithm.Builtin(types)
	require.NoError(t, err)
	s, err := settings.Parse([]byte(`{"paths": {"data_folder": "/nonexistent/dds/root"}}`))
	require.NoError(t, err)

	_, err = New(Config{Settings: s, Types: types, Algorithms: algos})
	require.Error(t, err)
	require.True(t, settings.ConfigError.Has(err))

	_, err = New(Config{Settings: s})
	require.Error(t, err)
}

func TestResolve_RejectsPathsOutsideRoot(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.eng.Open(filepath.Dir(fx.root))
	require.Error(t, err)
	require.True(t, ErrOutsideDataRoot.Has(err))

	abs, err := fx.eng.Resolve(fx.root)
	require.NoError(t, err)
	require.Equal(t, fx.root, abs)
	require.Equal(t, "M1/Gmsh_0.1", fx.eng.Rel(filepath.Join(fx.root, "M1", "Gmsh_0.1")))
}
