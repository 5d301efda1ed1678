package harness

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end test of the command line.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Files maps paths relative to the data root to their content.
	Files map[string]string `yaml:"files,omitempty"`

	// Tools maps executable references (Gmsh, automatic_polycube/mesh_stats)
	// to the body of the shell script standing in for them.
	Tools map[string]string `yaml:"tools,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one dds command line.
type FlowStep struct {
	// Run holds the arguments after "dds".
	Run []string `yaml:"run"`

	// Expect defaults to a zero exit code.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	Exit int `yaml:"exit"`

	// Error is the expected error code of a failing step.
	Error string `yaml:"error,omitempty"`

	// Stdout must appear in the step's standard output.
	Stdout string `yaml:"stdout,omitempty"`
}

// Assertion validates the data root after the flow.
type Assertion struct {
	Type string `yaml:"type"`

	// Path is used by file_exists and file_absent.
	Path string `yaml:"path,omitempty"`

	// Folder is used by folder_type, history_count and history_contains.
	Folder string `yaml:"folder,omitempty"`

	FolderType string `yaml:"folder_type,omitempty"`
	Algorithm  string `yaml:"algorithm,omitempty"`
	ReturnCode *int   `yaml:"return_code,omitempty"`
	Count      int    `yaml:"count,omitempty"`

	// Collection and Folders are used by collection_folders.
	Collection string   `yaml:"collection,omitempty"`
	Folders    []string `yaml:"folders,omitempty"`
}

// Assertion type constants.
const (
	AssertFileExists        = "file_exists"
	AssertFileAbsent        = "file_absent"
	AssertFolderType        = "folder_type"
	AssertHistoryCount      = "history_count"
	AssertHistoryContains   = "history_contains"
	AssertCollectionFolders = "collection_folders"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for rel := range s.Files {
		if err := checkRelative("files", rel); err != nil {
			return err
		}
	}
	for ref := range s.Tools {
		if err := checkRelative("tools", ref); err != nil {
			return err
		}
	}

	for i, step := range s.Flow {
		if len(step.Run) == 0 {
			return fmt.Errorf("flow[%d]: run is required", i)
		}
		if step.Expect != nil && step.Expect.Error != "" && step.Expect.Exit == 0 {
			return fmt.Errorf("flow[%d].expect: an error code needs a non-zero exit", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// checkRelative rejects paths escaping the directory they are written to.
func checkRelative(section, rel string) error {
	clean := path.Clean(rel)
	if rel == "" || path.IsAbs(rel) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%s: %q must be a relative path inside its directory", section, rel)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFileExists, AssertFileAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertFolderType:
		if a.Folder == "" || a.FolderType == "" {
			return fmt.Errorf("assertions[%d]: folder and folder_type are required for folder_type", index)
		}
	case AssertHistoryCount:
		if a.Folder == "" {
			return fmt.Errorf("assertions[%d]: folder is required for history_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertHistoryContains:
		if a.Folder == "" || a.Algorithm == "" {
			return fmt.Errorf("assertions[%d]: folder and algorithm are required for history_contains", index)
		}
	case AssertCollectionFolders:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for collection_folders", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
