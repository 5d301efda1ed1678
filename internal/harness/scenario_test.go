package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: one step
files:
  S1/CAD.step: "x"
flow:
  - run: [typeof, S1]
    expect:
      exit: 0
      stdout: step
assertions:
  - type: folder_type
    folder: S1
    folder_type: step
`))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, map[string]string{"S1/CAD.step": "x"}, s.Files)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, []string{"typeof", "S1"}, s.Flow[0].Run)
	assert.Equal(t, "step", s.Flow[0].Expect.Stdout)
	assert.Equal(t, AssertFolderType, s.Assertions[0].Type)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertion: []", "field assertion not found"},
		{"no name", "description: b\nflow: [{run: [x]}]", "name is required"},
		{"no description", "name: a\nflow: [{run: [x]}]", "description is required"},
		{"no flow", "name: a\ndescription: b", "flow list is required"},
		{"empty run", "name: a\ndescription: b\nflow: [{run: []}]", "flow[0]: run is required"},
		{"error without exit", "name: a\ndescription: b\nflow: [{run: [x], expect: {error: config}}]", "non-zero exit"},
		{"escaping file", "name: a\ndescription: b\nfiles: {../x: y}\nflow: [{run: [x]}]", "relative path"},
		{"absolute tool", "name: a\ndescription: b\ntools: {/bin/x: y}\nflow: [{run: [x]}]", "relative path"},
		{"assertion type", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: nope}]", "unknown assertion type"},
		{"file path", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: file_exists}]", "path is required"},
		{"folder type", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: folder_type, folder: S1}]", "folder_type are required"},
		{"history", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: history_contains, folder: S1}]", "algorithm are required"},
		{"count", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: history_count, folder: S1, count: -1}]", "non-negative"},
		{"collection", "name: a\ndescription: b\nflow: [{run: [x]}]\nassertions: [{type: collection_folders}]", "collection is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
