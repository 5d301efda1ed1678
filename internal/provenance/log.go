package provenance

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Filename is the provenance log file inside every data folder.
const Filename = "info.json"

// KeyLayout formats provenance keys.
const KeyLayout = "2006-01-02T15:04:05Z"

// Clock supplies wall time and the one-second back-off used when two entries
// would share a key.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Key formats t as a provenance key.
func Key(t time.Time) string {
	return t.UTC().Format(KeyLayout)
}

// Stamped pairs an entry with its key.
type Stamped struct {
	Key   string
	Entry Entry
}

// Log is the in-memory form of info.json.
type Log struct {
	entries map[string]Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: make(map[string]Entry)}
}

// Exists reports whether dir holds an info.json.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, Filename))
	return err == nil
}

// Load reads dir/info.json. A missing file yields an empty log.
func Load(dir string) (*Log, error) {
	path := filepath.Join(dir, Filename)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, Error.New("%s: %v", path, err)
	}
	return l, nil
}

// Parse decodes a log from JSON.
func Parse(data []byte) (*Log, error) {
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	for key := range entries {
		if _, err := time.Parse(KeyLayout, key); err != nil {
			return nil, Error.New("invalid key %q", key)
		}
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Log{entries: entries}, nil
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Keys returns every key in ascending order. Keys share one fixed-width
// layout, so lexical order is chronological order.
func (l *Log) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the entry stored under key.
func (l *Log) Get(key string) (Entry, bool) {
	e, ok := l.entries[key]
	return e, ok
}

// Entries returns all entries in key order.
func (l *Log) Entries() []Stamped {
	keys := l.Keys()
	out := make([]Stamped, len(keys))
	for i, k := range keys {
		out[i] = Stamped{Key: k, Entry: l.entries[k]}
	}
	return out
}

// Put stores e under key. Existing entries are never overwritten.
func (l *Log) Put(key string, e Entry) error {
	if _, err := time.Parse(KeyLayout, key); err != nil {
		return Error.New("invalid key %q", key)
	}
	if _, taken := l.entries[key]; taken {
		return Error.New("an entry already exists at %s", key)
	}
	l.entries[key] = e
	return nil
}

// FreeKey returns the key for the current time, sleeping one second per
// collision until a free key comes up.
func (l *Log) FreeKey(clock Clock) string {
	for {
		key := Key(clock.Now())
		if _, taken := l.entries[key]; !taken {
			return key
		}
		clock.Sleep(time.Second)
	}
}

// EarliestOf returns the earliest key recording algo, of any kind.
func (l *Log) EarliestOf(algo string) (string, bool) {
	for _, k := range l.Keys() {
		if l.entries[k].Algorithm == algo {
			return k, true
		}
	}
	return "", false
}

// HasGenerative reports whether the folder was created by a generative run
// of algo.
func (l *Log) HasGenerative(algo string) bool {
	for _, e := range l.entries {
		if e.Marker == KeyGenerative && e.Algorithm == algo {
			return true
		}
	}
	return false
}

// GenerativeAlgorithm returns the name of the latest generative or
// interactive-generative run, or "" for folders created by hand.
func (l *Log) GenerativeAlgorithm() string {
	keys := l.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		if e := l.entries[keys[i]]; e.IsGenerative() {
			return e.Algorithm
		}
	}
	return ""
}

// Marshal renders the log: sorted keys, four-space indent, no HTML escaping.
func (l *Log) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(l.entries); err != nil {
		return nil, Error.Wrap(err)
	}
	return buf.Bytes(), nil
}

// Save writes dir/info.json atomically.
func (l *Log) Save(dir string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(dir, Filename), data)
}

// Append stores e in dir/info.json under the first free key at or after the
// current time.
func Append(dir string, clock Clock, e Entry) (string, error) {
	return AppendAt(dir, "", clock, e)
}

// AppendAt stores e under key when it is free, falling back to the first
// free key at or after the current time. An empty key means "now".
func AppendAt(dir, key string, clock Clock, e Entry) (string, error) {
	l, err := Load(dir)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = l.FreeKey(clock)
	} else if _, taken := l.entries[key]; taken {
		key = l.FreeKey(clock)
	}
	if err := l.Put(key, e); err != nil {
		return "", err
	}
	if err := l.Save(dir); err != nil {
		return "", err
	}
	return key, nil
}

// WriteFileAtomic writes data to a temporary file beside path and renames it
// into place.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return Error.Wrap(err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Error.Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Error.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(os.Rename(name, path))
}
