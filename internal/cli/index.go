package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/index"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// IndexOptions holds flags shared by the index subcommands.
type IndexOptions struct {
	*RootOptions
	Database string
}

// openIndex opens the index database, by default inside the data root.
func (opts *IndexOptions) openIndex(eng *engine.Engine) (*index.Index, error) {
	path := opts.Database
	if path == "" {
		path = index.DefaultPath(eng.Root())
	}
	x, err := index.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot open index", err)
	}
	return x, nil
}

// RebuildResult is the JSON payload of index rebuild.
type RebuildResult struct {
	Folders int      `json:"folders"`
	Entries int      `json:"entries"`
	Skipped []string `json:"skipped,omitempty"`
}

// QueryOptions holds flags for index query.
type QueryOptions struct {
	*IndexOptions
	Filter index.Filter
	Since  string
}

// QueryRow is one entry in the JSON payload of index query.
type QueryRow struct {
	Folder     string   `json:"folder"`
	Key        string   `json:"key"`
	Type       string   `json:"type"`
	Kind       string   `json:"kind"`
	Algorithm  string   `json:"algorithm"`
	ReturnCode *int     `json:"return_code,omitempty"`
	Seconds    *float64 `json:"seconds,omitempty"`
	Hash       string   `json:"hash"`
}

// NewIndexCommand creates the index command and its subcommands.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Query provenance across the whole data root",
		Long: `Maintain a SQLite cache of every info.json below the data root and
query it. The cache lives in .dds/index.db and can be deleted at any time;
"index rebuild" recreates it.

Examples:
  dds index rebuild
  dds index query --algo evocube --failed
  dds index query --since 168h --kind generative`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "index database (default <data root>/.dds/index.db)")

	cmd.AddCommand(&cobra.Command{
		Use:           "rebuild",
		Short:         "Rebuild the index from every info.json",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexRebuild(opts, cmd)
		},
	})
	cmd.AddCommand(newIndexQueryCommand(opts))
	return cmd
}

func runIndexRebuild(opts *IndexOptions, cmd *cobra.Command) error {
	eng, err := openEngine(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	x, err := opts.openIndex(eng)
	if err != nil {
		return err
	}
	defer x.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	sum, err := x.Rebuild(ctx, eng.Root(), eng, opts.clock().Now())
	if err != nil {
		return WrapExitError(ExitFailure, "rebuild failed", err)
	}
	res := RebuildResult{Folders: sum.Folders, Entries: sum.Entries}
	for _, s := range sum.Skipped {
		eng.Logger().Warn("skipped malformed provenance", "folder", s.Folder, "error", s.Err)
		res.Skipped = append(res.Skipped, s.Folder)
	}
	return opts.formatter(cmd).Success(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "indexed %d entries from %d folders\n", res.Entries, res.Folders)
		return err
	})
}

func newIndexQueryCommand(parent *IndexOptions) *cobra.Command {
	opts := &QueryOptions{IndexOptions: parent}

	cmd := &cobra.Command{
		Use:           "query",
		Short:         "List indexed entries matching filters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexQuery(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Filter.Algorithm, "algo", "", "algorithm name")
	f.StringVar(&opts.Filter.Kind, "kind", "", "generative|interactive|transformative|rename")
	f.StringVar(&opts.Filter.FolderType, "type", "", "folder type")
	f.StringVar(&opts.Filter.Folder, "folder", "", "folder (relative to the data root) and its descendants")
	f.BoolVar(&opts.Filter.FailedOnly, "failed", false, "only runs that exited non-zero")
	f.StringVar(&opts.Since, "since", "", "a duration before now (72h) or a date (2024-03-01)")
	return cmd
}

func runIndexQuery(opts *QueryOptions, cmd *cobra.Command) error {
	switch opts.Filter.Kind {
	case "", index.KindGenerative, index.KindInteractive, index.KindTransformative, index.KindRename:
	default:
		return NewExitError(ExitFailure, fmt.Sprintf("invalid kind %q", opts.Filter.Kind))
	}
	if opts.Since != "" {
		since, err := parseSince(opts.Since, opts.clock().Now())
		if err != nil {
			return err
		}
		opts.Filter.Since = since
	}

	eng, err := openEngine(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	x, err := opts.openIndex(eng)
	if err != nil {
		return err
	}
	defer x.Close()

	at, err := x.LastRebuild(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "cannot read index", err)
	}
	if at == "" {
		eng.Logger().Warn("index was never built, run dds index rebuild")
	}

	rows, err := x.Query(cmd.Context(), opts.Filter)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	out := make([]QueryRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, QueryRow{
			Folder:     r.Folder,
			Key:        r.Key,
			Type:       r.FolderType,
			Kind:       r.Kind,
			Algorithm:  r.Algorithm,
			ReturnCode: r.ReturnCode,
			Seconds:    r.Duration,
			Hash:       r.Hash,
		})
	}
	return opts.formatter(cmd).Success(out, func(w io.Writer) error {
		if len(out) == 0 {
			_, err := fmt.Fprintln(w, "No matching entries")
			return err
		}
		_, err := fmt.Fprintln(w, queryTable(out).String())
		return err
	})
}

// parseSince accepts a duration before now or a date/time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range []string{provenance.KeyLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewExitError(ExitFailure, fmt.Sprintf("invalid --since %q: want a duration or a date", s))
}

func queryTable(rows []QueryRow) *table.Table {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		rc, took := "", ""
		if r.ReturnCode != nil {
			rc = fmt.Sprint(*r.ReturnCode)
		}
		if r.Seconds != nil {
			took = provenance.HumanDuration(*r.Seconds)
		}
		data = append(data, []string{r.Key, r.Folder, r.Type, r.Kind, r.Algorithm, rc, took})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KEY", "FOLDER", "TYPE", "KIND", "ALGORITHM", "RC", "DURATION").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case rows[row].ReturnCode != nil && *rows[row].ReturnCode != 0:
				return failedStyle
			default:
				return lipgloss.NewStyle()
			}
		})
}
