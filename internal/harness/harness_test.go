package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(scenario.Name, func(t *testing.T) {
			result := RunWithGolden(t, scenario)
			assert.True(t, result.Pass)
		})
	}
}

func TestRun_ReportsUnexpectedExit(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "typeof on a folder no type claims",
		Files:       map[string]string{"X/notes.txt": "hello"},
		Flow: []FlowStep{
			{Run: []string{"typeof", "X"}},
			{Run: []string{"typeof", "X"}, Expect: &ExpectClause{Exit: 1, Error: "no_matching_type"}},
		},
	}

	result, err := Run(scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0] dds typeof X: exit code 1, want 0")

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "no_matching_type", result.Trace[0].Error)
	assert.Empty(t, result.Trace[0].Created)
}

func TestRun_ChecksStdout(t *testing.T) {
	scenario := &Scenario{
		Name:        "stdout",
		Description: "typeof prints the type",
		Files:       map[string]string{"S1/CAD.step": "ISO-10303-21;"},
		Flow: []FlowStep{
			{Run: []string{"typeof", "S1"}, Expect: &ExpectClause{Stdout: "step"}},
			{Run: []string{"typeof", "S1"}, Expect: &ExpectClause{Stdout: "tet-mesh"}},
		},
	}

	result, err := Run(scenario, t.TempDir())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `does not contain "tet-mesh"`)
	assert.Equal(t, "step\n", result.Trace[0].Stdout)
}

func TestRun_WritesSettingsForTools(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:        "settings",
		Description: "tools become settings paths",
		Tools: map[string]string{
			"Gmsh":                          "true",
			"automatic_polycube/mesh_stats": "true",
		},
		Flow: []FlowStep{{Run: []string{"algorithms"}}},
	}

	result, err := Run(scenario, dir)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	data, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), filepath.Join(dir, "tools", "automatic_polycube"))
	assert.Contains(t, string(data), `"data_folder"`)

	info, err := os.Stat(filepath.Join(dir, "tools", "automatic_polycube", "mesh_stats"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestDifference(t *testing.T) {
	a := map[string]bool{"b": true, "a": true, "c": true}
	b := map[string]bool{"c": true}
	assert.Equal(t, []string{"a", "b"}, difference(a, b))
	assert.Nil(t, difference(b, a))
}
