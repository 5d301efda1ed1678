package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellExecutor_CapturesStreams(t *testing.T) {
	var tee bytes.Buffer
	out, err := ShellExecutor{}.Execute(context.Background(), Command{
		Line:    "echo out; echo err >&2; exit 4",
		Dir:     t.TempDir(),
		Capture: true,
		Tee:     true,
		Stdout:  &tee,
	})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(out.Stdout))
	assert.Equal(t, "err\n", string(out.Stderr))
	assert.Equal(t, 4, out.ReturnCode)
	assert.Equal(t, "out\n", tee.String())
}

func TestShellExecutor_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	out, err := ShellExecutor{}.Execute(context.Background(), Command{Line: "pwd", Dir: dir, Capture: true})
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", string(out.Stdout))
}

func TestShellExecutor_Uncaptured(t *testing.T) {
	var stdout bytes.Buffer
	out, err := ShellExecutor{}.Execute(context.Background(), Command{
		Line:   "cat",
		Stdin:  bytes.NewBufferString("typed"),
		Stdout: &stdout,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Stdout)
	assert.Equal(t, "typed", stdout.String())
}

func TestShellExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ShellExecutor{}.Execute(ctx, Command{Line: "sleep 10", Capture: true})
	require.Error(t, err)
}

func TestShellExecutor_MissingShell(t *testing.T) {
	_, err := ShellExecutor{Shell: "/nonexistent/sh"}.Execute(context.Background(), Command{Line: "true"})
	require.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "''"},
		{"/data/M1/tet.mesh", "/data/M1/tet.mesh"},
		{"0.1", "0.1"},
		{"my file.obj", "'my file.obj'"},
		{"it's", `'it'"'"'s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in), tt.in)
	}
}

func TestHookRegistry(t *testing.T) {
	r := NewHookRegistry()
	r.RegisterPre("b", func(context.Context, *HookContext) (Bag, error) { return nil, nil })
	r.RegisterPost("a", func(context.Context, *HookContext, Bag) error { return nil })
	r.RegisterPost("b", func(context.Context, *HookContext, Bag) error { return nil })

	assert.Equal(t, []string{"a", "b"}, r.Names())
	_, ok := r.Pre("a")
	assert.False(t, ok)
	_, ok = r.Post("a")
	assert.True(t, ok)
}

func TestRule(t *testing.T) {
	assert.Contains(t, rule("Gmsh"), "── Gmsh ")
	assert.Contains(t, rule(""), "────")
}
