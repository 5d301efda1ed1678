package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Settings          string
	Silent            bool
	Verbose           bool
	Format            string // "json" | "text"
	PropagateExitCode bool

	// Clock and IDs override the engine defaults (for testing).
	Clock provenance.Clock
	IDs   engine.IDGenerator

	// TempDir overrides the parent of run scratch directories.
	TempDir string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dds CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dds",
		Short: "dds - semantic data folders",
		Long: `Run meshing tools on typed data folders and keep track of what ran where.

Every folder below the data root has a type inferred from the files it
holds. Algorithms run on a folder of one type, either creating a child
folder (generative) or adding files in place (transformative), and record
the exact command in the folder's info.json.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitFailure, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", "", "settings file (default $DDS_SETTINGS, then settings.json beside the executable)")
	cmd.PersistentFlags().BoolVarP(&opts.Silent, "silent", "s", false, "do not echo captured tool output")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.PropagateExitCode, "propagate-exit-code", false, "exit with code 2 when a tool exits non-zero")

	cmd.AddCommand(NewTypeofCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewViewCommand(opts))
	cmd.AddCommand(NewChildrenCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewGetFileCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewLabelingCommand(opts))
	cmd.AddCommand(NewAlgorithmsCommand(opts))
	cmd.AddCommand(NewCollectionsCommand(opts))
	cmd.AddCommand(NewImportStepCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	for _, alias := range aliases {
		cmd.AddCommand(newAliasCommand(opts, alias))
	}

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
