package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// RunResult is the JSON payload of run and the algorithm aliases.
type RunResult struct {
	Algorithm  string  `json:"algorithm"`
	Kind       string  `json:"kind"`
	Folder     string  `json:"folder"`
	Key        string  `json:"key,omitempty"`
	Command    string  `json:"command,omitempty"`
	ReturnCode int     `json:"return_code"`
	Seconds    float64 `json:"seconds"`
	Output     string  `json:"output,omitempty"`
	OutputType string  `json:"output_type,omitempty"`
}

func newRunResult(f *engine.Folder, res *engine.Result) RunResult {
	r := RunResult{
		Algorithm:  res.Algorithm,
		Kind:       string(res.Kind),
		Folder:     f.Path(),
		Key:        res.Key,
		Command:    res.Command,
		ReturnCode: res.ReturnCode,
		Seconds:    res.Duration.Seconds(),
		Output:     res.OutputPath,
	}
	if res.Output != nil {
		r.OutputType = res.Output.Type().Name
	}
	return r
}

func (r RunResult) text(w io.Writer) error {
	status := "ok"
	if r.ReturnCode != 0 {
		status = fmt.Sprintf("exit code %d", r.ReturnCode)
	}
	_, err := fmt.Fprintf(w, "%s: %s in %s\n", r.Algorithm, status, provenance.HumanDuration(r.Seconds))
	if err != nil || r.Output == "" {
		return err
	}
	if r.OutputType != "" {
		_, err = fmt.Fprintf(w, "created %s (%s)\n", r.Output, r.OutputType)
	} else {
		_, err = fmt.Fprintf(w, "created %s\n", r.Output)
	}
	return err
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <algorithm> <path> [name=value...]",
		Short: "Run an algorithm on a data folder",
		Long: `Run an algorithm on a data folder.

Parameters without a value on the command line take the default of the
algorithm descriptor. A tool exiting non-zero is recorded in info.json and
reported; with --propagate-exit-code dds then exits with code 2.

Examples:
  dds run Gmsh MAMBO/B0 characteristic_length_factor=0.15
  dds run extract_surface MAMBO/B0/Gmsh_0.1
  dds run marchinghex_hexmeshing MAMBO/B0/Gmsh_0.1/marchinghex_1.0 keep_debug_files=true`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			f, err := withFolder(rootOpts, cmd, args[1])
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			_, err = runAndReport(ctx, rootOpts, cmd, f, args[0], assignments)
			return err
		},
	}
}

// runAndReport runs algo and prints the outcome. A non-zero tool exit
// becomes ExitSubprocess when the exit code is propagated.
func runAndReport(ctx context.Context, opts *RootOptions, cmd *cobra.Command, f *engine.Folder, algo string, args map[string]string) (*engine.Result, error) {
	start := time.Now()
	res, err := f.Run(ctx, algo, args, opts.Silent)
	if err != nil {
		if res != nil {
			_ = opts.formatter(cmd).Success(newRunResult(f, res), newRunResult(f, res).text)
		}
		return nil, WrapExitError(ExitFailure, algo+" failed", err)
	}
	slog.Debug("run finished", "algo", algo, "folder", f.Path(), "wall", time.Since(start))

	out := newRunResult(f, res)
	if err := opts.formatter(cmd).Success(out, out.text); err != nil {
		return nil, err
	}
	if res.ReturnCode != 0 && opts.PropagateExitCode {
		return res, NewExitError(ExitSubprocess, fmt.Sprintf("%s exited with code %d", algo, res.ReturnCode))
	}
	return res, nil
}

// alias is a shortcut command running one algorithm, or a chain where each
// step runs on the folder created by the previous one.
type alias struct {
	use   string
	short string
	steps []string
}

var aliases = []alias{
	{use: "gmsh", short: "Tetrahedral meshing of a CAD model (Gmsh)", steps: []string{"Gmsh"}},
	{use: "extract-surface", short: "Extract the boundary of a tetrahedral mesh", steps: []string{"extract_surface"}},
	{use: "naive-labeling", short: "Compute the naive polycube labeling", steps: []string{"naive_labeling"}},
	{use: "evocube", short: "Compute a polycube labeling with evocube", steps: []string{"evocube"}},
	{use: "marchinghex", short: "Generate a grid and hex-mesh with marchinghex", steps: []string{"gridgenerator", "marchinghex_hexmeshing"}},
}

func newAliasCommand(rootOpts *RootOptions, a alias) *cobra.Command {
	long := fmt.Sprintf("Shortcut for: dds run %s <path> [name=value...]", a.steps[0])
	if len(a.steps) > 1 {
		long = fmt.Sprintf("Runs %s, then %s on the folder it creates.\n\nEach name=value goes to the first step declaring that parameter.", a.steps[0], a.steps[1])
	}
	return &cobra.Command{
		Use:           a.use + " <path> [name=value...]",
		Short:         a.short,
		Long:          long,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			f, err := withFolder(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			perStep, err := splitAssignments(f.Engine(), a.steps, assignments)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			for i, step := range a.steps {
				res, err := runAndReport(ctx, rootOpts, cmd, f, step, perStep[i])
				if err != nil {
					return err
				}
				if i == len(a.steps)-1 {
					break
				}
				if res.ReturnCode != 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%s exited with code %d, not running %s", step, res.ReturnCode, a.steps[i+1]))
				}
				if res.Output == nil {
					return NewExitError(ExitFailure, fmt.Sprintf("%s created no typed folder", step))
				}
				f = res.Output
			}
			return nil
		},
	}
}

// splitAssignments hands each assignment to the first step declaring it;
// undeclared names go to the last step.
func splitAssignments(eng *engine.Engine, steps []string, assignments map[string]string) ([]map[string]string, error) {
	out := make([]map[string]string, len(steps))
	for i := range out {
		out[i] = make(map[string]string)
	}
	for name, value := range assignments {
		target := len(steps) - 1
		for i, step := range steps {
			d, err := eng.Algorithms().Get(step)
			if err != nil {
				return nil, WrapExitError(ExitFailure, "unknown algorithm", err)
			}
			if _, ok := d.Parameters[name]; ok {
				target = i
				break
			}
		}
		out[target][name] = value
	}
	return out, nil
}
