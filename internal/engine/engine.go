package engine

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/provenance"
	"github.com/hexmeshworkshop/dds/internal/settings"
)

// Config holds everything an Engine depends on. Settings, Types and
// Algorithms are required; the rest have defaults.
type Config struct {
	Settings   *settings.Settings
	Types      *foldertype.Registry
	Algorithms *algorithm.Catalog
	Hooks      *HookRegistry

	Executor Executor
	Clock    provenance.Clock
	IDs      IDGenerator
	Logger   *slog.Logger

	// Terminal streams. Captured output is teed here unless a run is
	// silent; interactive tools are attached to them.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// TempDir is the parent of run scratch directories. Defaults to
	// os.TempDir().
	TempDir string

	// Silent makes automatic derivations run without teeing their output.
	Silent bool
}

// Engine opens folders of one data root and runs algorithms on them.
type Engine struct {
	cfg  Config
	root string

	// (folder, keyword) pairs being derived, to stop runaway recursion.
	inflight map[string]bool
}

// New validates cfg, fills in defaults and resolves the data root.
func New(cfg Config) (*Engine, error) {
	if cfg.Settings == nil || cfg.Types == nil || cfg.Algorithms == nil {
		return nil, Error.New("settings, folder types and algorithms are required")
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NewHookRegistry()
	}
	if cfg.Executor == nil {
		cfg.Executor = ShellExecutor{}
	}
	if cfg.Clock == nil {
		cfg.Clock = provenance.SystemClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	root, err := cfg.Settings.DataFolder()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, settings.ConfigError.New("data folder %s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, settings.ConfigError.New("data folder %s is not a directory", root)
	}

	return &Engine{cfg: cfg, root: root, inflight: make(map[string]bool)}, nil
}

// Root returns the absolute path of the data root.
func (e *Engine) Root() string {
	return e.root
}

// Types returns the folder-type registry.
func (e *Engine) Types() *foldertype.Registry {
	return e.cfg.Types
}

// Algorithms returns the algorithm catalog.
func (e *Engine) Algorithms() *algorithm.Catalog {
	return e.cfg.Algorithms
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.cfg.Logger
}

// Stdout returns the terminal output stream.
func (e *Engine) Stdout() io.Writer {
	return e.cfg.Stdout
}

// InferType returns the type name of the folder at path without opening it.
func (e *Engine) InferType(path string) (string, error) {
	t, err := e.cfg.Types.Infer(path)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// Resolve turns path into an absolute path inside the data root. Relative
// paths are taken relative to the working directory.
func (e *Engine) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if !e.Contains(abs) {
		return "", ErrOutsideDataRoot.New("%s is not inside %s", abs, e.root)
	}
	return abs, nil
}

// Contains reports whether abs lies inside the data root (or is the root).
func (e *Engine) Contains(abs string) bool {
	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Rel returns path relative to the data root.
func (e *Engine) Rel(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return path
	}
	return rel
}
