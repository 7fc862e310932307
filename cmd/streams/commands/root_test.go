package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{})

	err := Execute(root)

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "streams", "Help should show command name")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"--unknown-flag", "value"})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)

	err := Execute(root)
	assert.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag", "Error should mention unknown flag")
}

// TestRootCommand_RejectsSubcommandFlags tests that flags meant for
// subcommands (like --parent) are rejected when passed to root command
func TestRootCommand_RejectsSubcommandFlags(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"--parent", "abc"})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)

	err := Execute(root)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{
		"init", "up", "down", "space", "stream", "post", "import", "attach", "edit", "highlight",
		"rm", "mv", "indent", "outdent", "ls", "watch", "migrate",
	} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSetVersionInfo(t *testing.T) {
	root := NewRootCmd()
	SetVersionInfo(root, "1.2.3", "abc123", "2024-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2024-01-01)", root.Version)
}
