package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/hooks"
	"github.com/hexmeshworkshop/dds/internal/provenance"
	"github.com/hexmeshworkshop/dds/internal/settings"
)

// openEngine loads the settings, the folder types and the algorithm
// catalog, and builds an engine writing to the command's streams.
func openEngine(opts *RootOptions, cmd *cobra.Command) (*engine.Engine, error) {
	path, err := settings.Locate(opts.Settings)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot locate settings", err)
	}
	s, err := settings.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot load settings", err)
	}

	types, err := foldertype.Builtin()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid folder types", err)
	}
	var extra []string
	if s.Has(settings.AlgorithmsKey) {
		dir, err := s.Path(settings.AlgorithmsKey)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "invalid settings", err)
		}
		extra = append(extra, dir)
	}
	algos, err := algorithm.Builtin(types, extra...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid algorithm descriptors", err)
	}

	reg := engine.NewHookRegistry()
	hooks.Register(reg)

	eng, err := engine.New(engine.Config{
		Settings:   s,
		Types:      types,
		Algorithms: algos,
		Hooks:      reg,
		Clock:      opts.Clock,
		IDs:        opts.IDs,
		Logger:     slog.Default(),
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
		TempDir:    opts.TempDir,
		Silent:     opts.Silent,
	})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot open data root", err)
	}
	slog.Debug("engine ready", "root", eng.Root(), "settings", path)
	return eng, nil
}

// openFolder opens the folder at path, relative to the working directory.
func openFolder(eng *engine.Engine, path string) (*engine.Folder, error) {
	f, err := eng.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot open folder", err)
	}
	return f, nil
}

// clock returns the configured clock.
func (opts *RootOptions) clock() provenance.Clock {
	if opts.Clock != nil {
		return opts.Clock
	}
	return provenance.SystemClock{}
}

// formatter returns an OutputFormatter writing to the command's streams.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so that
// a running tool is killed and its half-made output removed.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
		<-done
	}
}

// parseAssignments splits name=value arguments.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, NewExitError(ExitFailure, "expected name=value, got "+a)
		}
		if _, dup := out[name]; dup {
			return nil, NewExitError(ExitFailure, "argument "+name+" given twice")
		}
		out[name] = value
	}
	return out, nil
}
