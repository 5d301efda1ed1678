package engine

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/foldertype"
)

// LabelingType is the folder type of polycube labelings.
const LabelingType = "labeling"

// labelingStats is the stats accessor of labeling folders.
const labelingStats = "labeling"

func (f *Folder) requireType(name string) error {
	if f.typ.Name != name {
		return WrongFolderType.New("%s is %s, not %s", f.path, f.typ.Name, name)
	}
	return nil
}

// HasValidLabeling reports whether the labeling has no invalid chart,
// boundary or corner. The stats file is computed when missing.
func (f *Folder) HasValidLabeling(ctx context.Context) (bool, error) {
	if err := f.requireType(LabelingType); err != nil {
		return false, err
	}
	stats, err := f.Stats(ctx, labelingStats)
	if err != nil {
		return false, err
	}
	err = f.typ.CheckStats(stats)
	if foldertype.Invalid.Has(err) {
		return false, nil
	}
	return err == nil, err
}

// NbTurningPoints returns the number of turning points of the labeling.
func (f *Folder) NbTurningPoints(ctx context.Context) (int, error) {
	if err := f.requireType(LabelingType); err != nil {
		return 0, err
	}
	stats, err := f.Stats(ctx, labelingStats)
	if err != nil {
		return 0, err
	}
	n, err := foldertype.StatsNumber(stats, "$['turning-points'].nb")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// LabelingSimilarity returns the fraction of surface triangles given the
// same label by f and other. Both labelings must cover the same surface.
func (f *Folder) LabelingSimilarity(ctx context.Context, other *Folder) (float64, error) {
	if err := f.requireType(LabelingType); err != nil {
		return 0, err
	}
	if err := other.requireType(LabelingType); err != nil {
		return 0, err
	}
	mine, err := f.surfaceLabels(ctx)
	if err != nil {
		return 0, err
	}
	theirs, err := other.surfaceLabels(ctx)
	if err != nil {
		return 0, err
	}
	if len(mine) != len(theirs) {
		return 0, Error.New("%s labels %d triangles, %s labels %d", f.path, len(mine), other.path, len(theirs))
	}
	if len(mine) == 0 {
		return 0, Error.New("%s labels no triangle", f.path)
	}
	same := 0
	for i := range mine {
		if mine[i] == theirs[i] {
			same++
		}
	}
	return float64(same) / float64(len(mine)), nil
}

// surfaceLabels reads one label in [0,5] per line.
func (f *Folder) surfaceLabels(ctx context.Context) ([]int, error) {
	path, err := f.GetFile(ctx, "SURFACE_LABELING_TXT", true)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer fh.Close()

	var labels []int
	sc := bufio.NewScanner(fh)
	for line := 1; sc.Scan(); line++ {
		label, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil || label < 0 || label > 5 {
			return nil, Error.New("%s:%d: %q is not a label in [0,5]", path, line, sc.Text())
		}
		labels = append(labels, label)
	}
	if err := sc.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return labels, nil
}
