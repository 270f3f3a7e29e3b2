package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"system-insight/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LogConfig{Level: "warn"}, &buf)

	l.Info("hidden")
	l.Warn("shown", "host_id", "h1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "host_id=h1")
	assert.NoError(t, l.Close())
}

func TestJSONLoggerWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "agent.log")
	l := New(config.LogConfig{Level: "info", JSON: true, File: path, MaxSizeMB: 1}, &buf)

	l.Info("report sent", "samples", 7)
	require.NoError(t, l.Close())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "report sent", rec["msg"])
	assert.Equal(t, float64(7), rec["samples"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}
