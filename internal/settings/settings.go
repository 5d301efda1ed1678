// Package settings loads the per-installation settings.json file naming the
// data root and the location of every external tool.
package settings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/errs"
)

// ConfigError is the error class for unreadable or incomplete settings.
var ConfigError = errs.Class("config")

const (
	// Filename is the settings file name looked up next to the executable.
	Filename = "settings.json"

	// EnvVar overrides the settings location.
	EnvVar = "DDS_SETTINGS"

	// DataFolderKey names the data root in the paths table.
	DataFolderKey = "data_folder"

	// AlgorithmsKey optionally names a directory of extra algorithm
	// descriptors.
	AlgorithmsKey = "algorithms"
)

// Settings is the decoded settings file.
type Settings struct {
	file  string
	Paths map[string]string `json:"paths"`
}

// Locate returns the settings path to use: explicit when non-empty, then
// $DDS_SETTINGS, then settings.json beside the running executable.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", ConfigError.Wrap(err)
	}
	return filepath.Join(filepath.Dir(exe), Filename), nil
}

// Load reads and decodes a settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ConfigError.New("settings file %s not found (set --settings or %s)", path, EnvVar)
		}
		return nil, ConfigError.Wrap(err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, ConfigError.New("%s: %v", path, err)
	}
	s.file = path
	return s, nil
}

// Parse decodes settings from JSON.
func Parse(data []byte) (*Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Settings
	if err := dec.Decode(&s); err != nil {
		return nil, ConfigError.Wrap(err)
	}
	if s.Paths == nil {
		return nil, ConfigError.New("missing \"paths\" table")
	}
	return &s, nil
}

// File returns the path the settings were loaded from, if any.
func (s *Settings) File() string {
	return s.file
}

// Names returns the configured path names, sorted.
func (s *Settings) Names() []string {
	names := make([]string, 0, len(s.Paths))
	for name := range s.Paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is configured.
func (s *Settings) Has(name string) bool {
	_, ok := s.Paths[name]
	return ok
}

// Path returns the absolute, tilde-expanded path configured under name.
func (s *Settings) Path(name string) (string, error) {
	raw, ok := s.Paths[name]
	if !ok || raw == "" {
		return "", ConfigError.New("no path configured for %q in %s", name, s.describe())
	}
	return expand(raw)
}

// DataFolder returns the data root.
func (s *Settings) DataFolder() (string, error) {
	return s.Path(DataFolderKey)
}

// Executable resolves an algorithm executable reference of the form
// name[/relative/file]: the first segment names a configured path and the
// remainder is joined below it.
func (s *Settings) Executable(ref string) (string, error) {
	name, rest, _ := strings.Cut(ref, "/")
	base, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if rest == "" {
		return base, nil
	}
	return filepath.Join(base, filepath.FromSlash(rest)), nil
}

func (s *Settings) describe() string {
	if s.file == "" {
		return "settings"
	}
	return s.file
}

func expand(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", ConfigError.Wrap(err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", ConfigError.Wrap(err)
	}
	return abs, nil
}
