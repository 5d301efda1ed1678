package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/collections"
	"github.com/hexmeshworkshop/dds/internal/engine"
)

// loadCollections loads the collections index of the data root, logging
// folders that have disappeared.
func loadCollections(eng *engine.Engine) (*collections.Index, error) {
	idx, warnings, err := collections.Load(eng.Root(), eng)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot load "+collections.Filename, err)
	}
	for _, w := range warnings {
		slog.Warn("listed folder does not exist", "collection", w.Collection, "folder", w.Folder)
	}
	return idx, nil
}

// CollectionEntry is one collection in the JSON payload of collections.
type CollectionEntry struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Type    string   `json:"type"`
	Folders []string `json:"folders,omitempty"`
}

// NewCollectionsCommand creates the collections command and its
// subcommands.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List and edit the collections of the data root",
		Long: `Collections are named sets of folders of one type, kept in
collections.json at the data root. Names join subcollections with dots and
onward collections (folders derived from the collection's folders) with
slashes, as in All.MAMBO.Basic/Gmsh_0.1.

Examples:
  dds collections
  dds collections show All.MAMBO/Gmsh_0.1
  dds collections add-folder All.MAMBO.Basic MAMBO/B0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionsList(rootOpts, cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List every collection",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionsList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <name>",
		Short:         "List the folders of a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionsShow(rootOpts, cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "add-folder <name> <path>",
		Short:         "Add a folder to a concrete collection, creating it as needed",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(rootOpts, cmd)
			if err != nil {
				return err
			}
			return addToCollection(eng, args[0], resolveArg(eng, args[1]))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "add-collection <name> <suffix>",
		Short:         "Make <name>.<suffix> a subcollection of <name>",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(rootOpts, cmd)
			if err != nil {
				return err
			}
			idx, err := loadCollections(eng)
			if err != nil {
				return err
			}
			stack, onward, err := collections.ParseName(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid collection name", err)
			}
			if err := idx.AppendCollection(stack, onward, args[1]); err != nil {
				return WrapExitError(ExitFailure, "cannot add collection", err)
			}
			return nil
		},
	})
	return cmd
}

// addToCollection adds the folder at path to the named collection.
func addToCollection(eng *engine.Engine, name, path string) error {
	idx, err := loadCollections(eng)
	if err != nil {
		return err
	}
	stack, onward, err := collections.ParseName(name)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid collection name", err)
	}
	abs, err := eng.Resolve(path)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot add folder", err)
	}
	rel := filepath.ToSlash(eng.Rel(abs))
	if err := idx.AppendFolder(stack, onward, rel); err != nil {
		return WrapExitError(ExitFailure, "cannot add folder", err)
	}
	slog.Info("added folder to collection", "collection", name, "folder", rel)
	return nil
}

func runCollectionsList(opts *RootOptions, cmd *cobra.Command) error {
	eng, err := openEngine(opts, cmd)
	if err != nil {
		return err
	}
	idx, err := loadCollections(eng)
	if err != nil {
		return err
	}
	names := idx.Names()
	entries := make([]CollectionEntry, 0, len(names))
	for _, name := range names {
		c, _ := idx.Get(name)
		entries = append(entries, CollectionEntry{Name: name, Kind: string(c.Kind), Type: c.Type})
	}
	return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintf(w, "No collections in %s\n", filepath.Join(eng.Root(), collections.Filename))
			return err
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Name, e.Kind, e.Type})
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("NAME", "KIND", "FOLDERS TYPE").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle()
			})
		_, err := fmt.Fprintln(w, t.String())
		return err
	})
}

func runCollectionsShow(opts *RootOptions, cmd *cobra.Command, name string) error {
	eng, err := openEngine(opts, cmd)
	if err != nil {
		return err
	}
	idx, err := loadCollections(eng)
	if err != nil {
		return err
	}
	c, ok := idx.Get(name)
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("no collection %q", name))
	}
	folders, err := idx.Folders(name)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot list collection", err)
	}
	entry := CollectionEntry{Name: name, Kind: string(c.Kind), Type: c.Type, Folders: folders}
	return opts.formatter(cmd).Success(entry, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, strings.Join(folders, "\n"))
		return err
	})
}
