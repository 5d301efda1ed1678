package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ImportStepOptions holds flags for the import-step command.
type ImportStepOptions struct {
	*RootOptions
	Collection string
}

// ImportResult is the JSON payload of import-step.
type ImportResult struct {
	Folder     string `json:"folder"`
	Collection string `json:"collection,omitempty"`
}

// NewImportStepCommand creates the import-step command.
func NewImportStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportStepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import-step <file> <name>",
		Short: "Import a CAD model as a new step folder",
		Long: `Copy a STEP file into a new folder of the data root.

name is the folder path relative to the data root; missing parents are
created. With --collection the new folder is also added to that concrete
collection.

Example:
  dds import-step ~/models/B0.step MAMBO/B0 --collection All.MAMBO.Basic`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			f, err := eng.ImportStep(args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "cannot import "+args[0], err)
			}
			if opts.Collection != "" {
				if err := addToCollection(eng, opts.Collection, f.Path()); err != nil {
					return err
				}
			}
			res := ImportResult{Folder: f.Path(), Collection: opts.Collection}
			return opts.formatter(cmd).Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Folder)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "concrete collection to add the folder to")
	return cmd
}

// UpdateResult is the JSON payload of update.
type UpdateResult struct {
	Renamed int `json:"renamed"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Rename legacy filenames below the data root",
		Long: `Walk the data root and rename files written under names used by older
tool versions (tetra.mesh, hex.ovm, ...) to their current names. Every
rename is recorded in the folder's info.json.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(rootOpts, cmd)
			if err != nil {
				return err
			}
			n, err := eng.RecursiveUpdate()
			if err != nil {
				return WrapExitError(ExitFailure, "update failed", err)
			}
			res := UpdateResult{Renamed: n}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%d file(s) renamed\n", n)
				return err
			})
		},
	}
}
