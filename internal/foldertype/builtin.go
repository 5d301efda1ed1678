package foldertype

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/jp"
)

var builtinOps = map[string]Ops{
	"root":     {Check: checkRoot},
	"step":     {Check: nonEmpty("STEP")},
	"tet-mesh": {Check: nonEmpty("TET_MESH_MEDIT")},
	"labeling": {
		Check:         nonEmpty("SURFACE_LABELING_TXT"),
		StatsAccessor: "labeling",
		CheckStats:    checkLabelingStats,
	},
}

// labelingFeatures are the parts of a labeling whose invalid count must be
// zero.
var labelingFeatures = []string{"charts", "boundaries", "corners"}

// checkLabelingStats accepts a labeling with no invalid chart, boundary or
// corner.
func checkLabelingStats(stats any) error {
	var bad []string
	for _, feature := range labelingFeatures {
		n, err := StatsNumber(stats, "$."+feature+".invalid")
		if err != nil {
			return err
		}
		if n != 0 {
			bad = append(bad, fmt.Sprintf("%g invalid %s", n, feature))
		}
	}
	if len(bad) > 0 {
		return Invalid.New("%s", strings.Join(bad, ", "))
	}
	return nil
}

// StatsNumber returns the number at the JSONPath expr of a decoded stats
// document.
func StatsNumber(stats any, expr string) (float64, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return 0, KeywordError.New("jsonpath %q: %v", expr, err)
	}
	switch v := x.First(stats).(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, Invalid.New("stats have no %s", expr)
	default:
		return 0, Invalid.New("stats %s is %v, not a number", expr, v)
	}
}

func checkRoot(dir string, t *Type) error {
	name, err := t.Filename("COLLECTIONS")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%s is not a JSON object: %w", name, err)
	}
	return nil
}

func nonEmpty(keyword string) func(string, *Type) error {
	return func(dir string, t *Type) error {
		name, err := t.Filename(keyword)
		if err != nil {
			return err
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return fmt.Errorf("%s is empty", name)
		}
		return nil
	}
}
