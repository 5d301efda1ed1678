package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
)

// Bag carries data from a pre-hook to the post-hook of the same run.
type Bag map[string]any

// HookContext is everything a hook may look at. Hooks never read process
// state such as the working directory.
type HookContext struct {
	Algorithm *algorithm.Descriptor
	Subject   *Folder

	// Output is the new child folder of generative runs, "" otherwise.
	Output string

	// Scratch is a private directory removed after the post-hook.
	Scratch string

	// WorkDir is the working directory of the subprocess.
	WorkDir string

	Args   map[string]any
	Others map[string]any
	Silent bool
	Logger *slog.Logger

	// Set before the post-hook: stream files (relative to the destination
	// folder, "" when empty) and the exit code.
	StdoutFile string
	StderrFile string
	ReturnCode int
}

// Destination is the folder the run writes to: the output folder of
// generative runs, the subject otherwise.
func (hc *HookContext) Destination() string {
	if hc.Output != "" {
		return hc.Output
	}
	return hc.Subject.Path()
}

// KeepDebugFiles reports others.keep_debug_files.
func (hc *HookContext) KeepDebugFiles() bool {
	keep, _ := hc.Others["keep_debug_files"].(bool)
	return keep
}

// OtherString returns a string entry of others.
func (hc *HookContext) OtherString(key string) string {
	s, _ := hc.Others[key].(string)
	return s
}

// PreHook runs after the output folder is created and before the subprocess.
type PreHook func(ctx context.Context, hc *HookContext) (Bag, error)

// PostHook runs after the provenance entry is written.
type PostHook func(ctx context.Context, hc *HookContext, bag Bag) error

// HookRegistry maps algorithm names to hooks.
type HookRegistry struct {
	pre  map[string]PreHook
	post map[string]PostHook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{pre: make(map[string]PreHook), post: make(map[string]PostHook)}
}

// RegisterPre sets the pre-hook of algo.
func (r *HookRegistry) RegisterPre(algo string, h PreHook) {
	r.pre[algo] = h
}

// RegisterPost sets the post-hook of algo.
func (r *HookRegistry) RegisterPost(algo string, h PostHook) {
	r.post[algo] = h
}

// Pre returns the pre-hook of algo.
func (r *HookRegistry) Pre(algo string) (PreHook, bool) {
	h, ok := r.pre[algo]
	return h, ok
}

// Post returns the post-hook of algo.
func (r *HookRegistry) Post(algo string) (PostHook, bool) {
	h, ok := r.post[algo]
	return h, ok
}

// Names returns the algorithms with at least one hook, sorted.
func (r *HookRegistry) Names() []string {
	seen := make(map[string]bool)
	for name := range r.pre {
		seen[name] = true
	}
	for name := range r.post {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hooksFor returns the hooks a descriptor declares, failing when a declared
// hook is not registered.
func (r *HookRegistry) hooksFor(d *algorithm.Descriptor) (PreHook, PostHook, error) {
	var (
		pre  PreHook
		post PostHook
		ok   bool
	)
	if d.PreProcessing {
		if pre, ok = r.Pre(d.Name); !ok {
			return nil, nil, HookError.New("%s declares pre-processing but no pre-hook is registered", d.Name)
		}
	}
	if d.PostProcessing {
		if post, ok = r.Post(d.Name); !ok {
			return nil, nil, HookError.New("%s declares post-processing but no post-hook is registered", d.Name)
		}
	}
	return pre, post, nil
}
