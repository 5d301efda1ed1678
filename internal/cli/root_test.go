package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dds", cmd.Use)
	assert.Contains(t, cmd.Long, "info.json")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"typeof", "run", "view", "children", "history", "get-file", "stats", "labeling",
		"algorithms", "collections", "import-step", "update", "index",
		"gmsh", "extract-surface", "naive-labeling", "evocube", "marchinghex",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	silentFlag := cmd.PersistentFlags().Lookup("silent")
	require.NotNil(t, silentFlag)
	assert.Equal(t, "s", silentFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("settings"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("propagate-exit-code"))
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path  []string
		flag  string
		short string
	}{
		{[]string{"children"}, "recursive", "r"},
		{[]string{"children"}, "type", ""},
		{[]string{"children"}, "algo", ""},
		{[]string{"get-file"}, "must-exist", ""},
		{[]string{"algorithms"}, "type", ""},
		{[]string{"import-step"}, "collection", ""},
		{[]string{"index", "query"}, "failed", ""},
		{[]string{"index", "query"}, "since", ""},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		f := sub.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "%v --%s", tt.path, tt.flag)
		assert.Equal(t, tt.short, f.Shorthand)
	}

	query, _, err := cmd.Find([]string{"index", "query"})
	require.NoError(t, err)
	assert.NotNil(t, query.InheritedFlags().Lookup("db"))
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
