package collections

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typesByDir infers the type from a "type" file written in each folder.
type typesByDir struct{}

func (typesByDir) InferType(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(path, "type"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func folder(t *testing.T, root, rel, typ string) {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte(typ), 0o644))
}

func index(t *testing.T, root, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, Filename), []byte(body), 0o644))
}

const mambo = `{
    "All": {
        "subcollections": {
            "MAMBO": {
                "subcollections": {
                    "Basic": {
                        "folders": ["MAMBO/B0", "MAMBO/B1"],
                        "onward": {
                            "Gmsh_0.1": {
                                "folders": ["MAMBO/B0/Gmsh_0.1", "MAMBO/B1/Gmsh_0.1"]
                            }
                        }
                    },
                    "Simple": {
                        "folders": ["MAMBO/S0"]
                    }
                }
            }
        }
    }
}`

func mamboRoot(t *testing.T) string {
	root := t.TempDir()
	for _, rel := range []string{"MAMBO/B0", "MAMBO/B1", "MAMBO/S0"} {
		folder(t, root, rel, "step")
	}
	folder(t, root, "MAMBO/B0/Gmsh_0.1", "tet-mesh")
	folder(t, root, "MAMBO/B1/Gmsh_0.1", "tet-mesh")
	index(t, root, mambo)
	return root
}

func TestLoad(t *testing.T) {
	root := mamboRoot(t)
	idx, warnings, err := Load(root, typesByDir{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, []string{
		"All",
		"All.MAMBO",
		"All.MAMBO.Basic",
		"All.MAMBO.Basic/Gmsh_0.1",
		"All.MAMBO.Simple",
		"All.MAMBO/Gmsh_0.1",
		"All/Gmsh_0.1",
	}, idx.Names())

	all, ok := idx.Get("All")
	require.True(t, ok)
	assert.Equal(t, Virtual, all.Kind)
	assert.Equal(t, "step", all.Type)

	basic, ok := idx.Get("All.MAMBO.Basic")
	require.True(t, ok)
	assert.Equal(t, Concrete, basic.Kind)
	assert.Equal(t, []string{"Gmsh_0.1"}, basic.OnwardSuffixes())

	onward, ok := idx.Get("All.MAMBO/Gmsh_0.1")
	require.True(t, ok)
	assert.Equal(t, Virtual, onward.Kind)
	assert.Equal(t, "tet-mesh", onward.Type)

	folders, err := idx.Folders("All")
	require.NoError(t, err)
	assert.Equal(t, []string{"MAMBO/B0", "MAMBO/B1", "MAMBO/S0"}, folders)

	folders, err = idx.Folders("All/Gmsh_0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"MAMBO/B0/Gmsh_0.1", "MAMBO/B1/Gmsh_0.1"}, folders)

	_, err = idx.Folders("Nope")
	assert.True(t, CollectionError.Has(err))
}

func TestLoad_MissingFile(t *testing.T) {
	idx, warnings, err := Load(t.TempDir(), typesByDir{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, idx.Names())
}

func TestLoad_WarnsOnMissingFolder(t *testing.T) {
	root := t.TempDir()
	folder(t, root, "A", "step")
	index(t, root, `{"Mine": {"folders": ["A", "gone"]}}`)

	idx, warnings, err := Load(root, typesByDir{})
	require.NoError(t, err)
	assert.Equal(t, []Warning{{Collection: "Mine", Folder: "gone"}}, warnings)
	assert.Equal(t, "Mine: gone is listed but does not exist", warnings[0].String())

	c, _ := idx.Get("Mine")
	assert.Equal(t, "step", c.Type)
	assert.Equal(t, []string{"A", "gone"}, c.Folders())
}

func TestLoad_TypeMismatchNamesBothFolders(t *testing.T) {
	root := t.TempDir()
	folder(t, root, "A", "step")
	folder(t, root, "B", "tet-mesh")
	index(t, root, `{"Mixed": {"folders": ["A", "B"]}}`)

	_, _, err := Load(root, typesByDir{})
	require.Error(t, err)
	assert.True(t, CollectionError.Has(err))

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, &TypeMismatchError{
		Collection: "Mixed",
		Folder:     "B",
		Type:       "tet-mesh",
		Other:      "A",
		OtherType:  "step",
	}, mismatch)
	assert.Contains(t, err.Error(), "A is step, B is tet-mesh")
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":               `[`,
		"empty collection":       `{"X": {}}`,
		"empty subcollections":   `{"X": {"subcollections": {}}}`,
		"mixed kinds":            `{"X": {"subcollections": {"Y": {"folders": ["A"]}}, "folders": ["A"]}}`,
		"duplicate folder":       `{"X": {"folders": ["A", "A"]}}`,
		"unknown key":            `{"X": {"folders": ["A"], "extra": 1}}`,
		"virtual onward":         `{"X": {"folders": ["A"], "onward": {"Y": {"subcollections": {"Z": {"folders": ["A"]}}}}}}`,
		"subcollection mismatch": `{"X": {"subcollections": {"Y": {"folders": ["A"]}, "Z": {"folders": ["B"]}}}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			folder(t, root, "A", "step")
			folder(t, root, "B", "tet-mesh")
			index(t, root, body)
			_, _, err := Load(root, typesByDir{})
			require.Error(t, err)
			assert.True(t, CollectionError.Has(err))
		})
	}
}

func TestAppendFolder(t *testing.T) {
	root := t.TempDir()
	folder(t, root, "M1", "step")
	folder(t, root, "M2", "step")
	folder(t, root, "M1/Gmsh_0.1", "tet-mesh")
	folder(t, root, "T", "tet-mesh")

	idx, _, err := Load(root, typesByDir{})
	require.NoError(t, err)

	require.NoError(t, idx.AppendFolder([]string{"All", "Mine"}, nil, "M2"))
	require.NoError(t, idx.AppendFolder([]string{"All", "Mine"}, nil, "M1"))
	require.NoError(t, idx.AppendFolder([]string{"All", "Mine"}, []string{"Gmsh_0.1"}, "M1/Gmsh_0.1"))

	err = idx.AppendFolder([]string{"All", "Mine"}, nil, "T")
	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "M2", mismatch.Other)

	assert.Error(t, idx.AppendFolder([]string{"All", "Mine"}, nil, "absent"))
	assert.Error(t, idx.AppendFolder([]string{"All"}, nil, "M1"), "virtual collections hold no folders")
	assert.Error(t, idx.AppendFolder([]string{"Other"}, []string{"Gmsh_0.1"}, "M1/Gmsh_0.1"), "onward needs its base")

	data, err := os.ReadFile(filepath.Join(root, Filename))
	require.NoError(t, err)
	assert.Equal(t, `{
    "All": {
        "subcollections": {
            "Mine": {
                "folders": [
                    "M1",
                    "M2"
                ],
                "onward": {
                    "Gmsh_0.1": {
                        "folders": [
                            "M1/Gmsh_0.1"
                        ]
                    }
                }
            }
        }
    }
}
`, string(data))

	reloaded, _, err := Load(root, typesByDir{})
	require.NoError(t, err)
	assert.Equal(t, idx.Names(), reloaded.Names())
}

func TestAppendFolder_ChecksSupercollectionType(t *testing.T) {
	root := t.TempDir()
	folder(t, root, "Other/O1", "step")
	folder(t, root, "T", "tet-mesh")
	idx, _, err := Load(root, typesByDir{})
	require.NoError(t, err)

	require.NoError(t, idx.AppendFolder([]string{"Extra", "Others"}, nil, "Other/O1"))
	extra, ok := idx.Get("Extra")
	require.True(t, ok)
	assert.Equal(t, "step", extra.Type)
	assert.Equal(t, []string{"Others"}, extra.Subcollections())

	err = idx.AppendFolder([]string{"Extra", "Tets"}, nil, "T")
	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "Extra", mismatch.Collection)
	assert.Equal(t, "Extra.Tets", mismatch.Folder)
	_, ok = idx.Get("Extra.Tets")
	assert.False(t, ok)
}

func TestAppendCollection(t *testing.T) {
	root := mamboRoot(t)
	idx, _, err := Load(root, typesByDir{})
	require.NoError(t, err)

	assert.Error(t, idx.AppendCollection([]string{"All", "MAMBO"}, nil, "Missing"))
	assert.Error(t, idx.AppendCollection([]string{"All", "MAMBO"}, []string{"Gmsh_0.1"}, "Basic"))

	require.NoError(t, idx.AppendCollection([]string{"All", "MAMBO"}, nil, "Basic"))
	reloaded, _, err := Load(root, typesByDir{})
	require.NoError(t, err)
	assert.Equal(t, idx.Names(), reloaded.Names())
}

func TestParseName(t *testing.T) {
	stack, onward, err := ParseName("All.MAMBO.Basic/Gmsh_0.1/naive_labeling")
	require.NoError(t, err)
	assert.Equal(t, []string{"All", "MAMBO", "Basic"}, stack)
	assert.Equal(t, []string{"Gmsh_0.1", "naive_labeling"}, onward)
	assert.Equal(t, "All.MAMBO.Basic/Gmsh_0.1/naive_labeling", FullName(stack, onward))

	for _, bad := range []string{"", "All..X", "All/", "/Gmsh"} {
		_, _, err := ParseName(bad)
		assert.Error(t, err, bad)
	}
}
