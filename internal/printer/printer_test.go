package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects output to buffers with colors off
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr, prevNoColor := Out, Err, color.NoColor
	Out, Err, color.NoColor = out, errOut, true
	t.Cleanup(func() {
		Out, Err, color.NoColor = prevOut, prevErr, prevNoColor
	})
	return out, errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nExplanation\n\nTry this fix\n", errOut.String())
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	context := map[string]string{
		"Stream":    "~abc",
		"Namespace": "team",
	}
	err := ErrorWithContext("Test Error", "Explanation", context, nil)
	require.Equal(t, "Test Error", err.Error())
	assert.Contains(t, errOut.String(), "  Namespace: team\n  Stream: ~abc\n")
}

func TestMessage(t *testing.T) {
	out, _ := capture(t)
	Message(0, "01hq3k", "groceries", false)
	Message(1, "01hq3m", "milk", true)
	assert.Equal(t, "01hq3k groceries\n  01hq3m ★ milk\n", out.String())
}

func TestSuccessAndWarning(t *testing.T) {
	out, errOut := capture(t)
	Success("done\n")
	Success("✓ already prefixed\n")
	Warning("careful\n")
	assert.Equal(t, "✓ done\n✓ already prefixed\n", out.String())
	assert.Equal(t, "⚠️  careful\n", errOut.String())
}
