package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
)

// AlgorithmsOptions holds flags for the algorithms command.
type AlgorithmsOptions struct {
	*RootOptions
	Type string
}

// AlgorithmEntry is one descriptor in the JSON payload of algorithms.
type AlgorithmEntry struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Input       string   `json:"input_folder_type"`
	Output      string   `json:"output_folder_type,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NewAlgorithmsCommand creates the algorithms command.
func NewAlgorithmsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlgorithmsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the known algorithms",
		Long: `List the algorithm descriptors: the built-in ones plus those found in
the directory configured under "algorithms" in the settings.

Examples:
  dds algorithms
  dds algorithms --type tet-mesh`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			if opts.Type != "" {
				if _, ok := eng.Types().Get(opts.Type); !ok {
					return NewExitError(ExitFailure, fmt.Sprintf("unknown folder type %q", opts.Type))
				}
			}
			descriptors := eng.Algorithms().ForType(opts.Type)
			entries := make([]AlgorithmEntry, 0, len(descriptors))
			for _, d := range descriptors {
				entries = append(entries, algorithmEntry(d))
			}
			return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, algorithmsTable(entries).String())
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "only list algorithms running on this folder type")
	return cmd
}

func algorithmEntry(d *algorithm.Descriptor) AlgorithmEntry {
	e := AlgorithmEntry{
		Name:        d.Name,
		Kind:        string(d.Kind),
		Input:       d.InputFolderType,
		Output:      d.OutputFolderType,
		Description: d.Description,
	}
	for _, name := range d.ParameterNames() {
		if !d.Parameters[name].Bound() {
			e.Parameters = append(e.Parameters, name)
		}
	}
	return e
}

func algorithmsTable(entries []AlgorithmEntry) *table.Table {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		types := e.Input
		if e.Output != "" {
			types += " → " + e.Output
		}
		rows = append(rows, []string{e.Name, e.Kind, types, e.Description})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "KIND", "TYPES", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
}
