package foldertype

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtin(t *testing.T) *Registry {
	t.Helper()
	r, err := Builtin()
	require.NoError(t, err)
	return r
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestBuiltin_Names(t *testing.T) {
	assert.Equal(t,
		[]string{"hex-mesh", "labeling", "marchinghex_grid", "report", "root", "step", "tet-mesh"},
		builtin(t).Names())
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"step", []string{"CAD.step"}, "step"},
		{"tet-mesh", []string{"tet.mesh", "surface.obj"}, "tet-mesh"},
		{"labeling", []string{"surface_labeling.txt"}, "labeling"},
		{"ovm only", []string{"hex_mesh.ovm"}, "hex-mesh"},
		{"grid", []string{"grid.mesh"}, "marchinghex_grid"},
		{"grid after hexmeshing", []string{"grid.mesh", "hex.mesh"}, "hex-mesh"},
		{"root", []string{"collections.json"}, "root"},
	}

	r := builtin(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.files...)

			typ, err := r.Infer(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ.Name)
		})
	}
}

func TestInfer_NoMatch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "notes.txt")

	_, err := builtin(t).Infer(dir)
	require.Error(t, err)
	assert.True(t, NoMatchingType.Has(err))
}

func TestInfer_DirectoryDoesNotCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tet.mesh"), 0o755))

	_, err := builtin(t).Infer(dir)
	assert.True(t, NoMatchingType.Has(err))
}

func TestInfer_Ambiguous(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "CAD.step", "tet.mesh")

	_, err := builtin(t).Infer(dir)
	require.Error(t, err)
	assert.True(t, AmbiguousType.Has(err))
	assert.Contains(t, err.Error(), "step, tet-mesh")

	var amb *AmbiguousTypeError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, dir, amb.Path)
	assert.Equal(t, []string{"step", "tet-mesh"}, amb.Candidates)
}

func TestType_Filename(t *testing.T) {
	tet, ok := builtin(t).Get("tet-mesh")
	require.True(t, ok)

	name, err := tet.Filename("SURFACE_MAP_TXT")
	require.NoError(t, err)
	assert.Equal(t, "surface_map.txt", name)

	_, err = tet.Filename("HEX_MESH_MEDIT")
	require.Error(t, err)
	assert.True(t, KeywordError.Has(err))
}

func TestType_DerivationsAndViews(t *testing.T) {
	r := builtin(t)
	hex, _ := r.Get("hex-mesh")

	d, ok := hex.Derivation("HEX_MESH_MEDIT")
	require.True(t, ok)
	assert.Equal(t, "OVM_to_MEDIT", d.Algorithm)
	assert.Equal(t, []string{"HEX_MESH_OVM"}, d.When)

	_, ok = hex.Derivation("HEX_MESH_OVM")
	assert.False(t, ok)

	algo, ok, err := hex.View("")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "view_hex_mesh", algo)

	_, _, err = hex.View("nope")
	assert.True(t, KeywordError.Has(err))

	report, _ := r.Get("report")
	_, ok, err = report.View("")
	require.NoError(t, err)
	assert.False(t, ok)

	kw, err := hex.StatsKeyword("hex_mesh")
	require.NoError(t, err)
	assert.Equal(t, "HEX_MESH_STATS_JSON", kw)
}

func TestType_Check(t *testing.T) {
	r := builtin(t)
	step, _ := r.Get("step")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CAD.step"), nil, 0o644))
	assert.Error(t, step.Check(dir))

	touch(t, dir, "CAD.step")
	assert.NoError(t, step.Check(dir))

	root, _ := r.Get("root")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collections.json"), []byte("[]"), 0o644))
	assert.Error(t, root.Check(dir))
}

func TestLabeling_StatsPredicate(t *testing.T) {
	labeling, ok := builtin(t).Get("labeling")
	require.True(t, ok)
	assert.Equal(t, "labeling", labeling.CheckedStats())

	kw, err := labeling.StatsKeyword("labeling")
	require.NoError(t, err)
	assert.Equal(t, "LABELING_STATS_JSON", kw)
	d, ok := labeling.Derivation("LABELING_STATS_JSON")
	require.True(t, ok)
	assert.Equal(t, "labeling_stats", d.Algorithm)

	stats := func(charts, boundaries, corners float64) any {
		return map[string]any{
			"charts":         map[string]any{"nb": 6.0, "invalid": charts},
			"boundaries":     map[string]any{"nb": 12.0, "invalid": boundaries},
			"corners":        map[string]any{"nb": 8.0, "invalid": corners},
			"turning-points": map[string]any{"nb": 0.0},
		}
	}
	assert.NoError(t, labeling.CheckStats(stats(0, 0, 0)))

	err = labeling.CheckStats(stats(2, 0, 1))
	require.Error(t, err)
	assert.True(t, Invalid.Has(err))
	assert.Contains(t, err.Error(), "2 invalid charts, 1 invalid corners")

	err = labeling.CheckStats(map[string]any{"charts": map[string]any{"invalid": 0.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.boundaries.invalid")

	// Types without a stats predicate accept anything.
	step, _ := builtin(t).Get("step")
	assert.Empty(t, step.CheckedStats())
	assert.NoError(t, step.CheckStats(nil))
}

func TestStatsNumber(t *testing.T) {
	doc := map[string]any{"turning-points": map[string]any{"nb": 3.0}, "name": "x"}

	n, err := StatsNumber(doc, "$['turning-points'].nb")
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	_, err = StatsNumber(doc, "$.name")
	assert.True(t, Invalid.Has(err))
	_, err = StatsNumber(doc, "$.missing")
	assert.True(t, Invalid.Has(err))
	_, err = StatsNumber(doc, "$[")
	assert.True(t, KeywordError.Has(err))
}

func TestValidate_StatsPredicateAccessor(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:               "checked",
		DistinctiveContent: []string{"A"},
		Filenames:          map[string]string{"A": "a.txt"},
	}, Ops{StatsAccessor: "quality", CheckStats: func(any) error { return nil }}))

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stats predicate reads undeclared accessor "quality"`)
}

func TestLoadFS_RejectsUnknownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/a.yml": {Data: []byte("name: a\ncolour: red\n")},
	}
	err := NewRegistry().LoadFS(fsys, "defs", nil)
	require.Error(t, err)
	assert.True(t, DefinitionError.Has(err))
	assert.Contains(t, err.Error(), "colour")
}

func TestLoadFS_Duplicate(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/a.yml": {Data: []byte("name: a\n")},
		"defs/b.yml": {Data: []byte("name: a\n")},
	}
	err := NewRegistry().LoadFS(fsys, "defs", nil)
	assert.True(t, DefinitionError.Has(err))
}

func TestValidate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:               "broken",
		DistinctiveContent: []string{"A"},
		Filenames:          map[string]string{"B": "b.txt"},
		Derivations:        map[string]Derivation{"C": {Algorithm: "x"}},
		DefaultView:        "nope",
	}, Ops{}))

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinctive_content names undeclared keyword A")
	assert.Contains(t, err.Error(), "derivations names undeclared keyword C")
	assert.Contains(t, err.Error(), `default_view "nope"`)
}
