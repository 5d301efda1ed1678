package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// TraceSnapshot captures the trace of a scenario for golden comparison.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Steps    []TraceEvent `json:"steps"`
}

// MarshalTrace returns the canonical JSON of a scenario trace.
func MarshalTrace(name string, trace []TraceEvent) ([]byte, error) {
	raw, err := json.Marshal(TraceSnapshot{Scenario: name, Steps: trace})
	if err != nil {
		return nil, err
	}
	return provenance.Canonicalize(raw)
}

// RunWithGolden executes a scenario in a temporary directory, fails the
// test on any expect or assertion error and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario, t.TempDir())
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares the trace of result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result.Trace)
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
}
