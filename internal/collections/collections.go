// Package collections reads and updates collections.json, the index of
// named folder sets kept at the data root.
//
// A collection is either virtual (named subcollections, no folders) or
// concrete (folder paths relative to the data root, plus optional onward
// collections listing folders derived from them). Names join the
// subcollection stack with dots and the onward stack with slashes:
//
//	All.MAMBO.Basic/Gmsh_0.1/naive_labeling
//
// Every folder of a collection has the same type.
package collections

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/errs"

	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// Filename is the index file at the data root.
const Filename = "collections.json"

// CollectionError is the error class of malformed or inconsistent
// collections.
var CollectionError = errs.Class("collection")

// TypeMismatchError reports two folders of one collection with different
// types.
type TypeMismatchError struct {
	Collection string
	Folder     string
	Type       string
	Other      string
	OtherType  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("collection %s mixes types: %s is %s, %s is %s",
		e.Collection, e.Other, e.OtherType, e.Folder, e.Type)
}

// Inferrer infers the type of a folder. engine.Engine implements it.
type Inferrer interface {
	InferType(path string) (string, error)
}

// Kind tells virtual and concrete collections apart.
type Kind string

const (
	Virtual  Kind = "virtual"
	Concrete Kind = "concrete"
)

// Collection is one named set of folders.
type Collection struct {
	Stack  []string
	Onward []string
	Kind   Kind

	// Type is the folder type shared by all folders, "" while unknown
	// (every listed folder is missing).
	Type string

	// typedBy is the folder (or subcollection) that fixed Type.
	typedBy string

	folders map[string]bool
	subs    map[string]bool
	onwards map[string]bool
}

func newCollection(stack, onward []string, kind Kind) *Collection {
	return &Collection{
		Stack:   append([]string(nil), stack...),
		Onward:  append([]string(nil), onward...),
		Kind:    kind,
		folders: make(map[string]bool),
		subs:    make(map[string]bool),
		onwards: make(map[string]bool),
	}
}

// Name returns the full collection name.
func (c *Collection) Name() string {
	return FullName(c.Stack, c.Onward)
}

// Folders returns the folder paths listed directly, sorted.
func (c *Collection) Folders() []string {
	return sortedSet(c.folders)
}

// Subcollections returns the subcollection suffixes, sorted.
func (c *Collection) Subcollections() []string {
	return sortedSet(c.subs)
}

// OnwardSuffixes returns the onward collection suffixes, sorted.
func (c *Collection) OnwardSuffixes() []string {
	return sortedSet(c.onwards)
}

// FullName joins a subcollection stack and an onward stack.
func FullName(stack, onward []string) string {
	name := strings.Join(stack, ".")
	if len(onward) > 0 {
		name += "/" + strings.Join(onward, "/")
	}
	return name
}

// ParseName splits a full name into its stacks.
func ParseName(name string) (stack, onward []string, err error) {
	parts := strings.Split(name, "/")
	stack = strings.Split(parts[0], ".")
	onward = parts[1:]
	for _, s := range append(append([]string(nil), stack...), onward...) {
		if s == "" {
			return nil, nil, CollectionError.New("invalid collection name %q", name)
		}
	}
	return stack, onward, nil
}

// Warning reports a listed folder that no longer exists.
type Warning struct {
	Collection string
	Folder     string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s is listed but does not exist", w.Collection, w.Folder)
}

// Index is the parsed collections.json.
type Index struct {
	root     string
	inferrer Inferrer
	byName   map[string]*Collection
	warnings []Warning
}

// Load parses root/collections.json. A missing file yields an empty index.
// Folders that do not exist are returned as warnings; folders of
// mismatching types fail the load.
func Load(root string, inferrer Inferrer) (*Index, []Warning, error) {
	idx := &Index{root: root, inferrer: inferrer, byName: make(map[string]*Collection)}
	data, err := os.ReadFile(filepath.Join(root, Filename))
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil, nil
	}
	if err != nil {
		return nil, nil, CollectionError.Wrap(err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, CollectionError.New("%s: %v", Filename, err)
	}
	for _, key := range sortedKeys(top) {
		if _, err := idx.parse([]string{key}, nil, top[key]); err != nil {
			return nil, nil, err
		}
	}
	return idx, idx.warnings, nil
}

type content struct {
	Subcollections map[string]json.RawMessage `json:"subcollections"`
	Folders        []string                   `json:"folders"`
	Onward         map[string]json.RawMessage `json:"onward"`
}

func (idx *Index) parse(stack, onward []string, raw json.RawMessage) (*Collection, error) {
	name := FullName(stack, onward)
	if _, dup := idx.byName[name]; dup {
		return nil, CollectionError.New("%s is declared twice", name)
	}
	var c content
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, CollectionError.New("%s: %v", name, err)
	}

	if c.Subcollections != nil {
		if c.Folders != nil || c.Onward != nil {
			return nil, CollectionError.New("%s: a collection with subcollections has no folders or onward collections", name)
		}
		if len(onward) > 0 {
			return nil, CollectionError.New("%s: virtual collections cannot be onward collections", name)
		}
		if len(c.Subcollections) == 0 {
			return nil, CollectionError.New("%s: empty subcollections", name)
		}
		col := newCollection(stack, onward, Virtual)
		idx.byName[name] = col
		for _, suffix := range sortedKeys(c.Subcollections) {
			sub, err := idx.parse(append(stack[:len(stack):len(stack)], suffix), onward, c.Subcollections[suffix])
			if err != nil {
				return nil, err
			}
			if err := col.adopt(sub.Type, sub.Name()); err != nil {
				return nil, err
			}
			col.subs[suffix] = true
		}
		return col, nil
	}

	if len(c.Folders) == 0 {
		return nil, CollectionError.New("%s: a collection needs subcollections or folders", name)
	}
	col := newCollection(stack, onward, Concrete)
	idx.byName[name] = col
	for _, rel := range c.Folders {
		if col.folders[rel] {
			return nil, CollectionError.New("%s lists %s twice", name, rel)
		}
		col.folders[rel] = true
		path := filepath.Join(idx.root, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err != nil {
			idx.warnings = append(idx.warnings, Warning{Collection: name, Folder: rel})
			continue
		}
		typ, err := idx.inferrer.InferType(path)
		if err != nil {
			return nil, CollectionError.Wrap(fmt.Errorf("%s: %s: %w", name, rel, err))
		}
		if err := col.adopt(typ, rel); err != nil {
			return nil, err
		}
	}
	for _, suffix := range sortedKeys(c.Onward) {
		child, err := idx.parse(stack, append(onward[:len(onward):len(onward)], suffix), c.Onward[suffix])
		if err != nil {
			return nil, err
		}
		if child.Kind != Concrete {
			return nil, CollectionError.New("%s: onward collection %s must list folders", name, suffix)
		}
		col.onwards[suffix] = true
	}
	if err := idx.propagateOnward(col); err != nil {
		return nil, err
	}
	return col, nil
}

// adopt records that member (a folder or subcollection) has type typ.
func (c *Collection) adopt(typ, member string) error {
	if typ == "" {
		return nil
	}
	if c.Type == "" {
		c.Type, c.typedBy = typ, member
		return nil
	}
	return c.check(typ, member)
}

// propagateOnward declares the onward collection of a concrete collection
// on every virtual supercollection, so that All.MAMBO/Gmsh_0.1 exists when
// All.MAMBO.Basic/Gmsh_0.1 does.
func (idx *Index) propagateOnward(c *Collection) error {
	if len(c.Onward) == 0 {
		return nil
	}
	for n := len(c.Stack) - 1; n >= 1; n-- {
		name := FullName(c.Stack[:n], c.Onward)
		v, ok := idx.byName[name]
		if !ok {
			v = newCollection(c.Stack[:n], c.Onward, Virtual)
			idx.byName[name] = v
		}
		if err := v.adopt(c.Type, c.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Names returns every collection name, sorted.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.byName))
	for name := range idx.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named collection.
func (idx *Index) Get(name string) (*Collection, bool) {
	c, ok := idx.byName[name]
	return c, ok
}

// Folders returns every folder path of a collection, recursing into
// subcollections. Onward virtual collections gather the matching onward
// collection of every subcollection of their base.
func (idx *Index) Folders(name string) ([]string, error) {
	c, ok := idx.byName[name]
	if !ok {
		return nil, CollectionError.New("no collection %q", name)
	}
	set := make(map[string]bool)
	idx.gather(c, set)
	return sortedSet(set), nil
}

func (idx *Index) gather(c *Collection, set map[string]bool) {
	if c.Kind == Concrete {
		for f := range c.folders {
			set[f] = true
		}
		return
	}
	subs := c.subs
	if len(c.Onward) > 0 {
		if base, ok := idx.byName[FullName(c.Stack, nil)]; ok {
			subs = base.subs
		}
	}
	for suffix := range subs {
		stack := append(c.Stack[:len(c.Stack):len(c.Stack)], suffix)
		if sub, ok := idx.byName[FullName(stack, c.Onward)]; ok {
			idx.gather(sub, set)
		}
	}
}

// AppendFolder adds the folder rel (relative to the data root) to the
// concrete collection named by stack and onward, then saves the index. A
// missing collection is created and linked into its parent: the concrete
// collection one onward step up, or the virtual collection one
// subcollection step up (created as needed).
func (idx *Index) AppendFolder(stack, onward []string, rel string) error {
	name := FullName(stack, onward)
	path := filepath.Join(idx.root, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		return CollectionError.New("cannot add %s to %s: %v", rel, name, err)
	}
	typ, err := idx.inferrer.InferType(path)
	if err != nil {
		return CollectionError.Wrap(fmt.Errorf("cannot add %s to %s: %w", rel, name, err))
	}

	c, ok := idx.byName[name]
	if ok {
		if c.Kind != Concrete {
			return CollectionError.New("%s has subcollections and cannot list folders", name)
		}
		if err := c.check(typ, rel); err != nil {
			return err
		}
		if err := idx.checkParents(stack, onward, typ, name); err != nil {
			return err
		}
	} else {
		if err := idx.checkParents(stack, onward, typ, name); err != nil {
			return err
		}
		c = newCollection(stack, onward, Concrete)
		idx.byName[name] = c
		idx.link(stack, onward)
	}
	if err := c.adopt(typ, rel); err != nil {
		return err
	}
	c.folders[rel] = true
	if len(onward) == 0 {
		idx.typeAncestors(stack, typ, name)
	}
	if err := idx.propagateOnward(c); err != nil {
		return err
	}
	return idx.Save()
}

// AppendCollection makes stack+suffix, which must exist, a subcollection of
// the virtual collection stack, creating that one as needed, then saves
// the index.
func (idx *Index) AppendCollection(stack, onward []string, suffix string) error {
	if len(onward) > 0 {
		return CollectionError.New("onward collections cannot have subcollections")
	}
	subName := FullName(append(stack[:len(stack):len(stack)], suffix), nil)
	sub, ok := idx.byName[subName]
	if !ok {
		return CollectionError.New("no collection %q", subName)
	}
	name := FullName(stack, nil)
	c, ok := idx.byName[name]
	if ok {
		if c.Kind != Virtual {
			return CollectionError.New("%s lists folders and cannot have subcollections", name)
		}
		if err := c.check(sub.Type, subName); err != nil {
			return err
		}
	} else {
		if err := idx.checkParents(stack, nil, sub.Type, name); err != nil {
			return err
		}
		c = newCollection(stack, nil, Virtual)
		idx.byName[name] = c
		idx.link(stack, nil)
	}
	c.subs[suffix] = true
	if sub.Type != "" {
		_ = c.adopt(sub.Type, subName)
		idx.typeAncestors(stack, sub.Type, name)
	}
	return idx.Save()
}

// check reports whether a member of type typ may join c.
func (c *Collection) check(typ, member string) error {
	if typ == "" || c.Type == "" || typ == c.Type {
		return nil
	}
	return CollectionError.Wrap(&TypeMismatchError{
		Collection: c.Name(),
		Folder:     member,
		Type:       typ,
		Other:      c.typedBy,
		OtherType:  c.Type,
	})
}

// checkParents validates the collections a new collection will be linked
// into.
func (idx *Index) checkParents(stack, onward []string, typ, member string) error {
	if len(onward) > 0 {
		parentName := FullName(stack, onward[:len(onward)-1])
		if parent, ok := idx.byName[parentName]; !ok || parent.Kind != Concrete {
			return CollectionError.New("onward collection %s needs the concrete collection %s", FullName(stack, onward), parentName)
		}
		return nil
	}
	for n := len(stack) - 1; n >= 1; n-- {
		anc, ok := idx.byName[FullName(stack[:n], nil)]
		if !ok {
			continue
		}
		if anc.Kind != Virtual {
			return CollectionError.New("%s lists folders and cannot have subcollections", anc.Name())
		}
		if err := anc.check(typ, member); err != nil {
			return err
		}
	}
	return nil
}

// link registers a new collection in its parent, creating missing virtual
// supercollections.
func (idx *Index) link(stack, onward []string) {
	if len(onward) > 0 {
		idx.byName[FullName(stack, onward[:len(onward)-1])].onwards[onward[len(onward)-1]] = true
		return
	}
	for n := len(stack) - 1; n >= 1; n-- {
		name := FullName(stack[:n], nil)
		parent, ok := idx.byName[name]
		if !ok {
			parent = newCollection(stack[:n], nil, Virtual)
			idx.byName[name] = parent
		}
		parent.subs[stack[n]] = true
	}
}

// typeAncestors fixes the type of virtual supercollections that have none
// yet.
func (idx *Index) typeAncestors(stack []string, typ, member string) {
	for n := len(stack) - 1; n >= 1; n-- {
		if anc, ok := idx.byName[FullName(stack[:n], nil)]; ok && anc.Type == "" {
			anc.Type, anc.typedBy = typ, member
		}
	}
}

// Marshal renders the index as collections.json: sorted keys, sorted
// folders, 4-space indent.
func (idx *Index) Marshal() ([]byte, error) {
	top := make(map[string]any)
	for name, c := range idx.byName {
		if len(c.Stack) == 1 && len(c.Onward) == 0 {
			top[name] = idx.toJSON(c)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(top); err != nil {
		return nil, CollectionError.Wrap(err)
	}
	return buf.Bytes(), nil
}

func (idx *Index) toJSON(c *Collection) map[string]any {
	out := make(map[string]any)
	if c.Kind == Virtual {
		subs := make(map[string]any, len(c.subs))
		for suffix := range c.subs {
			stack := append(c.Stack[:len(c.Stack):len(c.Stack)], suffix)
			if sub, ok := idx.byName[FullName(stack, c.Onward)]; ok {
				subs[suffix] = idx.toJSON(sub)
			}
		}
		out["subcollections"] = subs
		return out
	}
	out["folders"] = c.Folders()
	if len(c.onwards) > 0 {
		onward := make(map[string]any, len(c.onwards))
		for suffix := range c.onwards {
			next := append(c.Onward[:len(c.Onward):len(c.Onward)], suffix)
			if child, ok := idx.byName[FullName(c.Stack, next)]; ok {
				onward[suffix] = idx.toJSON(child)
			}
		}
		out["onward"] = onward
	}
	return out
}

// Save writes collections.json atomically.
func (idx *Index) Save() error {
	data, err := idx.Marshal()
	if err != nil {
		return err
	}
	return CollectionError.Wrap(provenance.WriteFileAtomic(filepath.Join(idx.root, Filename), data))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]bool) []string {
	return sortedKeys(m)
}
