// Package provenance reads and writes info.json, the per-folder log of every
// algorithm run and rename that touched the folder.
//
// The log is a JSON object keyed by ISO-8601 UTC timestamps:
//
//	{
//	    "2024-03-01T10:00:00Z": {
//	        "GenerativeAlgorithm": "Gmsh",
//	        "command": "/usr/bin/gmsh /data/M1/CAD.step -3 ...",
//	        "duration": [1.25, "1.25s"],
//	        "parameters": {...},
//	        "return_code": 0,
//	        "stdout": "Gmsh.stdout.txt"
//	    }
//	}
//
// Entries are append-only. Keys unknown to this package survive a load/save
// round trip.
package provenance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/errs"
)

// Error is the error class for malformed logs.
var Error = errs.Class("provenance")

// Kind markers. The marker key of an entry holds the algorithm name.
const (
	KeyGenerative            = "GenerativeAlgorithm"
	KeyInteractiveGenerative = "InteractiveGenerativeAlgorithm"
	KeyTransformative        = "TransformativeAlgorithm"
)

// RenameAlgorithm is the algorithm name recorded under KeyTransformative for
// file renames.
const RenameAlgorithm = "rename"

var markers = []string{KeyGenerative, KeyInteractiveGenerative, KeyTransformative}

// Duration is the wall time of a run, serialized as [seconds, "human"].
type Duration struct {
	Seconds float64
	Human   string
}

// NewDuration builds a Duration with its human-readable form.
func NewDuration(seconds float64) *Duration {
	return &Duration{Seconds: seconds, Human: HumanDuration(seconds)}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return marshalNoEscape([]any{d.Seconds, d.Human})
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("duration: expected [seconds, text], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &d.Seconds); err != nil {
		return fmt.Errorf("duration seconds: %w", err)
	}
	if err := json.Unmarshal(pair[1], &d.Human); err != nil {
		return fmt.Errorf("duration text: %w", err)
	}
	return nil
}

// Entry is one provenance record.
type Entry struct {
	// Marker is one of KeyGenerative, KeyInteractiveGenerative or
	// KeyTransformative.
	Marker    string
	Algorithm string

	Command    string
	Parameters map[string]any
	Stdout     string
	Stderr     string
	ReturnCode *int
	Duration   *Duration

	OldFilename string
	NewFilename string

	// Extra holds keys written by other tools.
	Extra map[string]json.RawMessage
}

// NewRename builds the entry recorded when a file is renamed in place.
func NewRename(oldName, newName string) Entry {
	return Entry{
		Marker:      KeyTransformative,
		Algorithm:   RenameAlgorithm,
		OldFilename: oldName,
		NewFilename: newName,
	}
}

// IsRename reports whether e records a file rename.
func (e Entry) IsRename() bool {
	return e.Marker == KeyTransformative && e.Algorithm == RenameAlgorithm
}

// IsGenerative reports whether e records the run that created the folder.
func (e Entry) IsGenerative() bool {
	return e.Marker == KeyGenerative || e.Marker == KeyInteractiveGenerative
}

// Failed reports whether the recorded run exited non-zero.
func (e Entry) Failed() bool {
	return e.ReturnCode != nil && *e.ReturnCode != 0
}

func (e Entry) fields() map[string]any {
	m := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		m[k] = v
	}
	m[e.Marker] = e.Algorithm
	if e.IsRename() {
		m["old_filename"] = e.OldFilename
		m["new_filename"] = e.NewFilename
		return m
	}
	m["command"] = e.Command
	if e.Parameters != nil {
		m["parameters"] = e.Parameters
	}
	if e.Stdout != "" {
		m["stdout"] = e.Stdout
	}
	if e.Stderr != "" {
		m["stderr"] = e.Stderr
	}
	if e.ReturnCode != nil {
		m["return_code"] = *e.ReturnCode
	}
	if e.Duration != nil {
		m["duration"] = e.Duration
	}
	return m
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Marker == "" {
		return nil, Error.New("entry has no kind marker")
	}
	return marshalNoEscape(e.fields())
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{}
	for _, m := range markers {
		v, ok := raw[m]
		if !ok {
			continue
		}
		if e.Marker != "" {
			return fmt.Errorf("entry has both %s and %s", e.Marker, m)
		}
		e.Marker = m
		if err := json.Unmarshal(v, &e.Algorithm); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		delete(raw, m)
	}
	if e.Marker == "" {
		return fmt.Errorf("entry has no kind marker")
	}

	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}

	var rc int
	_, hasRC := raw["return_code"]
	var d Duration
	_, hasDuration := raw["duration"]

	for _, f := range []struct {
		key string
		dst any
	}{
		{"command", &e.Command},
		{"parameters", &e.Parameters},
		{"stdout", &e.Stdout},
		{"stderr", &e.Stderr},
		{"return_code", &rc},
		{"duration", &d},
		{"old_filename", &e.OldFilename},
		{"new_filename", &e.NewFilename},
	} {
		if err := take(f.key, f.dst); err != nil {
			return err
		}
	}
	if hasRC {
		e.ReturnCode = &rc
	}
	if hasDuration {
		e.Duration = &d
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// ParameterNames returns the recorded parameter names, sorted.
func (e Entry) ParameterNames() []string {
	names := make([]string, 0, len(e.Parameters))
	for k := range e.Parameters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
