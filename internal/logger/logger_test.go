package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and returns a cleanup
// function restoring the previous writer.
func captureOutput(t *testing.T, lvl, fmtStr string) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	prevOutput := output
	prevFormat := format
	mu.Unlock()

	InitWithWriter(buf, lvl, fmtStr)

	t.Cleanup(func() {
		mu.Lock()
		output = prevOutput
		setFormatLocked(prevFormat)
		mu.Unlock()
		rebuild()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := captureOutput(t, "DEBUG", "text")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf := captureOutput(t, "WARN", "text")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("SetLevelAdjustsAtRuntime", func(t *testing.T) {
		buf := captureOutput(t, "ERROR", "text")

		Info("hidden")
		SetLevel("INFO")
		Info("visible")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "visible")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		SetLevel("LOUD")
		Info("still info")

		assert.Contains(t, buf.String(), "still info")
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")

	Info("structured", "session", "s-1", "code", 1000)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "structured", record["msg"])
	assert.Equal(t, "s-1", record["session"])
	assert.Equal(t, float64(1000), record["code"])
}

func TestWithBindsFields(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")

	l := With("client", "RG1")
	l.Info("bound")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "RG1", record["client"])
}
