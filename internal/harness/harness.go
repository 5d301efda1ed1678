package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hexmeshworkshop/dds/internal/cli"
	"github.com/hexmeshworkshop/dds/internal/settings"
	"github.com/hexmeshworkshop/dds/internal/testutil"
)

// Epoch is the fake clock's start time.
var Epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// Harness runs the steps of one scenario.
type Harness struct {
	root     string
	tmp      string
	settings string
	clock    *testutil.FakeClock
	ids      *testutil.SequentialIDs
}

// Run executes a scenario in dir, which must be empty or missing, and
// returns the trace and the outcome of every expect clause and assertion.
// An error is returned only when the scenario cannot be set up.
func Run(scenario *Scenario, dir string) (*Result, error) {
	h, err := setup(scenario, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult()
	result.Root = h.root
	for i, step := range scenario.Flow {
		event, err := h.execute(step.Run)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, event)
		for _, msg := range checkExpect(i, step, event) {
			result.AddError(msg)
		}
		h.clock.Advance(time.Minute)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// setup lays out the data root, the tool scripts and the settings file.
func setup(scenario *Scenario, dir string) (*Harness, error) {
	h := &Harness{
		root:     filepath.Join(dir, "data"),
		tmp:      filepath.Join(dir, "tmp"),
		settings: filepath.Join(dir, settings.Filename),
		clock:    testutil.NewFakeClock(Epoch),
		ids:      testutil.NewSequentialIDs("scenario"),
	}
	tools := filepath.Join(dir, "tools")
	for _, d := range []string{h.root, h.tmp, tools} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}

	for rel, content := range scenario.Files {
		if err := writeFile(filepath.Join(h.root, filepath.FromSlash(rel)), content, 0o644); err != nil {
			return nil, err
		}
	}

	paths := map[string]string{settings.DataFolderKey: h.root}
	for ref, body := range scenario.Tools {
		if err := writeFile(filepath.Join(tools, filepath.FromSlash(ref)), "#!/bin/sh\n"+body+"\n", 0o755); err != nil {
			return nil, err
		}
		top, _, _ := strings.Cut(ref, "/")
		paths[top] = filepath.Join(tools, top)
	}
	data, err := json.Marshal(map[string]any{"paths": paths})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(h.settings, data, 0o644); err != nil {
		return nil, err
	}
	return h, nil
}

func writeFile(path, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), perm)
}

// execute runs one command line and records which files it touched.
func (h *Harness) execute(args []string) (TraceEvent, error) {
	before, err := h.listFiles()
	if err != nil {
		return TraceEvent{}, err
	}

	opts := &cli.RootOptions{
		Clock:   h.clock,
		IDs:     h.ids,
		TempDir: h.tmp,
	}
	cmd := cli.NewRootCommandWithOptions(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--settings", h.settings, "--silent"}, args...))
	runErr := cmd.Execute()

	after, err := h.listFiles()
	if err != nil {
		return TraceEvent{}, err
	}

	event := TraceEvent{
		Args:   args,
		Exit:   cli.GetExitCode(runErr),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		event.Error = cli.ErrorCode(runErr)
	}
	event.Created = difference(after, before)
	event.Removed = difference(before, after)
	return event, nil
}

// listFiles returns the regular files below the data root.
func (h *Harness) listFiles() (map[string]bool, error) {
	files := make(map[string]bool)
	err := filepath.WalkDir(h.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(h.root, path)
			if err != nil {
				return err
			}
			files[filepath.ToSlash(rel)] = true
		}
		return nil
	})
	return files, err
}

// difference returns the sorted keys of a missing from b, nil when none.
func difference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(i int, step FlowStep, event TraceEvent) []string {
	expect := ExpectClause{}
	if step.Expect != nil {
		expect = *step.Expect
	}
	var errs []string
	cmdline := "dds " + strings.Join(step.Run, " ")
	if event.Exit != expect.Exit {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: exit code %d, want %d\n%s", i, cmdline, event.Exit, expect.Exit, event.Stderr))
	}
	if expect.Error != "" && event.Error != expect.Error {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: error code %q, want %q", i, cmdline, event.Error, expect.Error))
	}
	if expect.Stdout != "" && !strings.Contains(event.Stdout, expect.Stdout) {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: stdout %q does not contain %q", i, cmdline, event.Stdout, expect.Stdout))
	}
	return errs
}
