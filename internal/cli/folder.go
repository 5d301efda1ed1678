package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/engine"
)

// resolveArg interprets a folder argument: absolute, relative to the
// working directory when that exists, otherwise relative to the data root.
func resolveArg(eng *engine.Engine, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(eng.Root(), path)
}

// withFolder opens the engine and the folder named by path.
func withFolder(opts *RootOptions, cmd *cobra.Command, path string) (*engine.Folder, error) {
	eng, err := openEngine(opts, cmd)
	if err != nil {
		return nil, err
	}
	return openFolder(eng, resolveArg(eng, path))
}

// TypeofResult is the JSON payload of typeof.
type TypeofResult struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// NewTypeofCommand creates the typeof command.
func NewTypeofCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "typeof <path>",
		Short: "Print the type of a data folder",
		Long: `Infer the type of a data folder from the files it holds.

Example:
  dds typeof MAMBO/B0/Gmsh_0.1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			res := TypeofResult{Path: f.Path(), Type: f.Type().Name}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Type)
				return err
			})
		},
	}
}

// NewViewCommand creates the view command.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <path> [what]",
		Short: "Open a data folder in its viewer",
		Long: `Open a data folder in the viewer registered by its type.

what selects one of the type's views; without it the default view opens.
Folders whose type has no viewer are printed instead.

Examples:
  dds view MAMBO/B0/Gmsh_0.1
  dds view MAMBO/B0/Gmsh_0.1/naive_labeling labeled_surface`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			what := ""
			if len(args) == 2 {
				what = args[1]
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			if err := f.View(ctx, what); err != nil {
				return WrapExitError(ExitFailure, "cannot view "+f.Path(), err)
			}
			return nil
		},
	}
}

// GetFileOptions holds flags for the get-file command.
type GetFileOptions struct {
	*RootOptions
	MustExist bool
}

// GetFileResult is the JSON payload of get-file.
type GetFileResult struct {
	Keyword string `json:"keyword"`
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
}

// NewGetFileCommand creates the get-file command.
func NewGetFileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetFileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get-file <path> <keyword>",
		Short: "Print the path of a file by keyword",
		Long: `Print the canonical path of a file of a data folder.

With --must-exist a missing file is derived by running the algorithm its
type registers for it.

Examples:
  dds get-file MAMBO/B0/Gmsh_0.1 TET_MESH_MEDIT
  dds get-file MAMBO/B0/Gmsh_0.1 SURFACE_MESH_OBJ --must-exist`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(opts.RootOptions, cmd, args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			path, err := f.GetFile(ctx, args[1], opts.MustExist)
			if err != nil {
				return WrapExitError(ExitFailure, "cannot get "+args[1], err)
			}
			res := GetFileResult{Keyword: args[1], Path: path, Exists: f.Has(args[1])}
			return opts.formatter(cmd).Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Path)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&opts.MustExist, "must-exist", false, "derive the file when it is missing")
	return cmd
}

// StatsResult is the JSON payload of stats.
type StatsResult struct {
	Accessor string `json:"accessor"`
	Query    string `json:"query,omitempty"`
	Value    any    `json:"value"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <path> <accessor> [jsonpath]",
		Short: "Print the statistics of a data folder",
		Long: `Print a stats document of a data folder, computing it when missing.

An optional JSONPath expression selects part of the document.

Examples:
  dds stats MAMBO/B0/Gmsh_0.1 tet_mesh
  dds stats MAMBO/B0/Gmsh_0.1 tet_mesh '$.cells.nb'`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			res := StatsResult{Accessor: args[1]}
			if len(args) == 3 {
				res.Query = args[2]
				res.Value, err = f.QueryStats(ctx, args[1], args[2])
			} else {
				res.Value, err = f.Stats(ctx, args[1])
			}
			if err != nil {
				return WrapExitError(ExitFailure, "cannot read "+args[1]+" stats", err)
			}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "    ")
				return enc.Encode(res.Value)
			})
		},
	}
}

// LabelingOptions holds flags for the labeling command.
type LabelingOptions struct {
	*RootOptions
	Compare string
}

// LabelingResult is the JSON payload of labeling.
type LabelingResult struct {
	Path          string   `json:"path"`
	Valid         bool     `json:"valid"`
	TurningPoints int      `json:"turning_points"`
	Compared      string   `json:"compared,omitempty"`
	Similarity    *float64 `json:"similarity,omitempty"`
}

// NewLabelingCommand creates the labeling command.
func NewLabelingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LabelingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "labeling <path>",
		Short: "Check a polycube labeling",
		Long: `Report whether a labeling is valid (no invalid chart, boundary or
corner) and its number of turning points, computing the labeling stats when
missing. With --compare, also print the fraction of triangles labeled the
same way by another labeling of the same surface.

Examples:
  dds labeling MAMBO/B0/Gmsh_0.1/naive_labeling
  dds labeling MAMBO/B0/Gmsh_0.1/naive_labeling --compare MAMBO/B0/Gmsh_0.1/evocube_20240301_100000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabeling(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Compare, "compare", "", "another labeling folder to compare with")
	return cmd
}

func runLabeling(opts *LabelingOptions, cmd *cobra.Command, path string) error {
	eng, err := openEngine(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	f, err := openFolder(eng, resolveArg(eng, path))
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	res := LabelingResult{Path: f.Path()}
	if res.Valid, err = f.HasValidLabeling(ctx); err != nil {
		return WrapExitError(ExitFailure, "cannot check labeling", err)
	}
	if res.TurningPoints, err = f.NbTurningPoints(ctx); err != nil {
		return WrapExitError(ExitFailure, "cannot count turning points", err)
	}
	if opts.Compare != "" {
		other, err := openFolder(eng, resolveArg(eng, opts.Compare))
		if err != nil {
			return err
		}
		sim, err := f.LabelingSimilarity(ctx, other)
		if err != nil {
			return WrapExitError(ExitFailure, "cannot compare labelings", err)
		}
		res.Compared = other.Path()
		res.Similarity = &sim
	}

	return opts.formatter(cmd).Success(res, func(w io.Writer) error {
		valid := "no"
		if res.Valid {
			valid = "yes"
		}
		fmt.Fprintf(w, "valid:          %s\n", valid)
		fmt.Fprintf(w, "turning points: %d\n", res.TurningPoints)
		if res.Similarity != nil {
			fmt.Fprintf(w, "similarity:     %s%% with %s\n", humanize.FtoaWithDigits(*res.Similarity*100, 2), eng.Rel(res.Compared))
		}
		return nil
	})
}
