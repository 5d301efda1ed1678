// Package foldertype defines the folder types of a data root: which files
// identify a folder as a given type, the canonical filename of every keyword,
// and the rules that derive missing files.
//
// Types are declared in YAML (see types/*.yml) and paired with a table of Go
// operations. A folder's type is inferred from its content alone.
package foldertype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/errs"
)

var (
	// NoMatchingType is returned when no type claims a folder.
	NoMatchingType = errs.Class("no matching type")

	// AmbiguousType is returned when several types claim a folder.
	AmbiguousType = errs.Class("ambiguous type")

	// KeywordError is returned for keywords a type does not declare.
	KeywordError = errs.Class("keyword")

	// DefinitionError is returned for malformed type definitions.
	DefinitionError = errs.Class("folder type definition")

	// Invalid is returned by stats predicates rejecting a folder.
	Invalid = errs.Class("invalid folder")
)

// AmbiguousTypeError lists the types claiming one folder, sorted.
type AmbiguousTypeError struct {
	Path       string
	Candidates []string
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("%s is claimed by %s", e.Path, strings.Join(e.Candidates, ", "))
}

// Derivation names the algorithm that produces a missing file.
type Derivation struct {
	Algorithm string `yaml:"algorithm"`

	// When lists keywords that must already exist for the rule to apply.
	When []string `yaml:"when,omitempty"`
}

// Definition is the declarative part of a folder type.
type Definition struct {
	Name               string                `yaml:"name"`
	Description        string                `yaml:"description"`
	DistinctiveContent []string              `yaml:"distinctive_content"`
	ExcludedContent    []string              `yaml:"excluded_content,omitempty"`
	Filenames          map[string]string     `yaml:"filenames"`
	Derivations        map[string]Derivation `yaml:"derivations,omitempty"`
	Stats              map[string]string     `yaml:"stats,omitempty"`
	Views              map[string]string     `yaml:"views,omitempty"`
	DefaultView        string                `yaml:"default_view,omitempty"`
}

// Ops is the per-type operation table.
type Ops struct {
	// Check reports why a folder of this type is unusable, or nil.
	Check func(dir string, t *Type) error

	// CheckStats judges the stats document behind the accessor
	// StatsAccessor. Callers derive the document when it is missing.
	StatsAccessor string
	CheckStats    func(stats any) error
}

// Type is a registered folder type.
type Type struct {
	Definition
	ops Ops
}

// Filename returns the canonical filename of keyword.
func (t *Type) Filename(keyword string) (string, error) {
	name, ok := t.Filenames[keyword]
	if !ok {
		return "", KeywordError.New("%s has no keyword %s", t.Name, keyword)
	}
	return name, nil
}

// HasKeyword reports whether keyword is declared by t.
func (t *Type) HasKeyword(keyword string) bool {
	_, ok := t.Filenames[keyword]
	return ok
}

// Keywords returns the declared keywords, sorted.
func (t *Type) Keywords() []string {
	return sortedKeys(t.Filenames)
}

// Derivation returns the rule producing keyword, if any.
func (t *Type) Derivation(keyword string) (Derivation, bool) {
	d, ok := t.Derivations[keyword]
	return d, ok
}

// StatsKeyword returns the keyword holding the JSON stats behind accessor.
func (t *Type) StatsKeyword(accessor string) (string, error) {
	kw, ok := t.Stats[accessor]
	if !ok {
		return "", KeywordError.New("%s has no stats %q (have %v)", t.Name, accessor, sortedKeys(t.Stats))
	}
	return kw, nil
}

// View returns the algorithm behind a view, the default view when what is
// empty. ok is false when the type has nothing to show.
func (t *Type) View(what string) (algo string, ok bool, err error) {
	if what == "" {
		what = t.DefaultView
	}
	if what == "" {
		return "", false, nil
	}
	algo, found := t.Views[what]
	if !found {
		return "", false, KeywordError.New("%s has no view %q (have %v)", t.Name, what, sortedKeys(t.Views))
	}
	return algo, true, nil
}

// Claims reports whether the content of dir matches t: at least one
// distinctive file present and no excluded file present.
func (t *Type) Claims(dir string) bool {
	for _, kw := range t.ExcludedContent {
		if isFile(filepath.Join(dir, t.Filenames[kw])) {
			return false
		}
	}
	for _, kw := range t.DistinctiveContent {
		if isFile(filepath.Join(dir, t.Filenames[kw])) {
			return true
		}
	}
	return false
}

// Check runs the type's validity predicate, if any.
func (t *Type) Check(dir string) error {
	if t.ops.Check == nil {
		return nil
	}
	return t.ops.Check(dir, t)
}

// CheckedStats returns the accessor of the stats predicate, "" when the
// type has none.
func (t *Type) CheckedStats() string {
	if t.ops.CheckStats == nil {
		return ""
	}
	return t.ops.StatsAccessor
}

// CheckStats runs the stats predicate on a decoded stats document.
func (t *Type) CheckStats(stats any) error {
	if t.ops.CheckStats == nil {
		return nil
	}
	return t.ops.CheckStats(stats)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
