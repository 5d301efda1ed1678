package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/index"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// ChildrenOptions holds flags for the children command.
type ChildrenOptions struct {
	*RootOptions
	Type      string
	Algorithm string
	Recursive bool
}

// ChildEntry is one subfolder in the JSON payload of children.
type ChildEntry struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	Algorithm string `json:"algorithm,omitempty"`
	Depth     int    `json:"depth"`
}

// NewChildrenCommand creates the children command.
func NewChildrenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChildrenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "children <path>",
		Short: "List the subfolders of a data folder",
		Long: `List the subfolders of a data folder with their type and the algorithm
that generated them. Folders no type claims are shown as "?".

Examples:
  dds children MAMBO/B0
  dds children MAMBO/B0 -r --type labeling
  dds children MAMBO/B0 -r --algo evocube`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(opts.RootOptions, cmd, args[0])
			if err != nil {
				return err
			}
			children, err := f.ListChildren(opts.Type, opts.Algorithm, opts.Recursive)
			if err != nil {
				return WrapExitError(ExitFailure, "cannot list children", err)
			}
			entries := make([]ChildEntry, 0, len(children))
			for _, c := range children {
				entries = append(entries, ChildEntry{Path: c.Path, Type: c.Type, Algorithm: c.Algorithm, Depth: c.Depth})
			}
			return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, childrenTree(f, children).String())
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "only list folders of this type")
	cmd.Flags().StringVar(&opts.Algorithm, "algo", "", "only list folders generated by this algorithm")
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "list the whole subtree")
	return cmd
}

// childrenTree nests children under their closest listed ancestor.
func childrenTree(f *engine.Folder, children []engine.Child) *tree.Tree {
	root := tree.Root(fmt.Sprintf("%s %s", f.Path(), dimStyle.Render("("+f.Type().Name+")"))).
		Enumerator(tree.RoundedEnumerator)
	nodes := map[string]*tree.Tree{f.Path(): root}
	for _, c := range children {
		label := filepath.Base(c.Path) + " " + dimStyle.Render(c.Type)
		if c.Algorithm != "" {
			label += dimStyle.Render(" ← " + c.Algorithm)
		}
		node := tree.Root(label)
		nodes[c.Path] = node

		parent := filepath.Dir(c.Path)
		for nodes[parent] == nil && parent != f.Path() && parent != filepath.Dir(parent) {
			parent = filepath.Dir(parent)
		}
		if p := nodes[parent]; p != nil {
			p.Child(node)
		} else {
			root.Child(node)
		}
	}
	return root
}

// HistoryEntry is one provenance entry in the JSON payload of history.
type HistoryEntry struct {
	Key        string         `json:"key"`
	Kind       string         `json:"kind"`
	Algorithm  string         `json:"algorithm"`
	Command    string         `json:"command,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	ReturnCode *int           `json:"return_code,omitempty"`
	Seconds    *float64       `json:"seconds,omitempty"`
	Renamed    []string       `json:"renamed,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <path>",
		Short: "Show the provenance log of a data folder",
		Long: `Show every run and rename recorded in a folder's info.json, oldest first.

Example:
  dds history MAMBO/B0/Gmsh_0.1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := withFolder(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			l, err := f.InfoDict()
			if err != nil {
				return WrapExitError(ExitFailure, "cannot read provenance", err)
			}
			stamped := l.Entries()
			entries := make([]HistoryEntry, 0, len(stamped))
			for _, s := range stamped {
				entries = append(entries, historyEntry(s))
			}
			now := rootOpts.clock().Now()
			return rootOpts.formatter(cmd).Success(entries, func(w io.Writer) error {
				if len(stamped) == 0 {
					_, err := fmt.Fprintf(w, "No provenance recorded in %s\n", f.Path())
					return err
				}
				_, err := fmt.Fprintln(w, historyTable(f.Path(), stamped, now).String())
				return err
			})
		},
	}
}

func historyEntry(s provenance.Stamped) HistoryEntry {
	e := s.Entry
	h := HistoryEntry{
		Key:        s.Key,
		Kind:       index.KindOf(e),
		Algorithm:  e.Algorithm,
		Command:    e.Command,
		Parameters: e.Parameters,
		ReturnCode: e.ReturnCode,
	}
	if e.Duration != nil {
		secs := e.Duration.Seconds
		h.Seconds = &secs
	}
	if e.IsRename() {
		h.Renamed = []string{e.OldFilename, e.NewFilename}
	}
	return h
}

func historyTable(dir string, stamped []provenance.Stamped, now time.Time) *table.Table {
	rows := make([][]string, 0, len(stamped))
	failed := make(map[int]bool)
	for i, s := range stamped {
		e := s.Entry
		when := s.Key
		if t, err := time.Parse(provenance.KeyLayout, s.Key); err == nil {
			when += " (" + humanize.RelTime(t, now, "ago", "from now") + ")"
		}
		rc, took, detail := "", "", ""
		if e.ReturnCode != nil {
			rc = fmt.Sprint(*e.ReturnCode)
		}
		if e.Duration != nil {
			took = e.Duration.Human
		}
		switch {
		case e.IsRename():
			detail = e.OldFilename + " → " + e.NewFilename
		case e.Stdout != "":
			detail = streamSize(dir, e.Stdout)
		}
		if e.Failed() {
			failed[i] = true
		}
		rows = append(rows, []string{when, index.KindOf(e), e.Algorithm, rc, took, detail})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("WHEN", "KIND", "ALGORITHM", "RC", "DURATION", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case failed[row]:
				return failedStyle
			default:
				return lipgloss.NewStyle()
			}
		})
}

// streamSize describes a captured stream file: its name and size, or that
// it is gone.
func streamSize(dir, name string) string {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return name + " (removed)"
	}
	return fmt.Sprintf("%s (%s)", name, humanize.Bytes(uint64(info.Size())))
}
