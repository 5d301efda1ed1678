package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hexmeshworkshop/dds/internal/collections"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] dds %s (exit %d)\n", i+1, strings.Join(event.Args, " "), event.Exit)
	}
	return buf.String()
}

// registryInferrer adapts a type registry to collections.Inferrer.
type registryInferrer struct {
	types *foldertype.Registry
}

func (r registryInferrer) InferType(path string) (string, error) {
	t, err := r.types.Infer(path)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// EvaluateAssertions checks every assertion against the data root of
// result and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	if len(assertions) == 0 {
		return nil
	}
	types, err := foldertype.Builtin()
	if err != nil {
		return []string{fmt.Sprintf("loading folder types: %v", err)}
	}

	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFileExists, AssertFileAbsent:
			err = assertFile(result, a)
		case AssertFolderType:
			err = assertFolderType(result, types, a)
		case AssertHistoryCount:
			err = assertHistoryCount(result, a)
		case AssertHistoryContains:
			err = assertHistoryContains(result, a)
		case AssertCollectionFolders:
			err = assertCollectionFolders(result, types, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (r *Result) path(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

func fail(result *Result, a Assertion, expected, actual string) error {
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
}

func assertFile(result *Result, a Assertion) error {
	_, err := os.Stat(result.path(a.Path))
	exists := err == nil
	switch {
	case a.Type == AssertFileExists && !exists:
		return fail(result, a, a.Path+" exists", "missing")
	case a.Type == AssertFileAbsent && exists:
		return fail(result, a, a.Path+" is absent", "present")
	}
	return nil
}

func assertFolderType(result *Result, types *foldertype.Registry, a Assertion) error {
	t, err := types.Infer(result.path(a.Folder))
	if err != nil {
		return fail(result, a, a.Folder+" is "+a.FolderType, err.Error())
	}
	if t.Name != a.FolderType {
		return fail(result, a, a.Folder+" is "+a.FolderType, t.Name)
	}
	return nil
}

func loadHistory(result *Result, folder string) (*provenance.Log, error) {
	return provenance.Load(result.path(folder))
}

func assertHistoryCount(result *Result, a Assertion) error {
	l, err := loadHistory(result, a.Folder)
	if err != nil {
		return err
	}
	if l.Len() != a.Count {
		return fail(result, a, fmt.Sprintf("%d entries in %s", a.Count, a.Folder), fmt.Sprintf("%d entries: %v", l.Len(), l.Keys()))
	}
	return nil
}

func assertHistoryContains(result *Result, a Assertion) error {
	l, err := loadHistory(result, a.Folder)
	if err != nil {
		return err
	}
	want := a.Algorithm
	if a.ReturnCode != nil {
		want += fmt.Sprintf(" with return code %d", *a.ReturnCode)
	}
	var seen []string
	for _, s := range l.Entries() {
		e := s.Entry
		if e.Algorithm != a.Algorithm {
			seen = append(seen, e.Algorithm)
			continue
		}
		if a.ReturnCode == nil || (e.ReturnCode != nil && *e.ReturnCode == *a.ReturnCode) {
			return nil
		}
		seen = append(seen, fmt.Sprintf("%s with return code %v", e.Algorithm, returnCode(e)))
	}
	return fail(result, a, want+" in "+a.Folder, fmt.Sprintf("%v", seen))
}

func returnCode(e provenance.Entry) any {
	if e.ReturnCode == nil {
		return "none"
	}
	return *e.ReturnCode
}

func assertCollectionFolders(result *Result, types *foldertype.Registry, a Assertion) error {
	idx, _, err := collections.Load(result.Root, registryInferrer{types})
	if err != nil {
		return err
	}
	got, err := idx.Folders(a.Collection)
	if err != nil {
		return fail(result, a, fmt.Sprintf("%s holds %v", a.Collection, a.Folders), err.Error())
	}
	want := slices.Clone(a.Folders)
	slices.Sort(want)
	got = slices.Clone(got)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		return fail(result, a, fmt.Sprintf("%s holds %v", a.Collection, want), fmt.Sprintf("%v", got))
	}
	return nil
}
