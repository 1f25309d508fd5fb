package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Errorf("error %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error 42")
}

func TestJSONFormatWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithFields(map[string]interface{}{"table": "orders", "count": 3}).
		WithError(errors.New("boom")).
		Info("synced")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "synced", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "orders", entry["table"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(config.LoggingConfig{Level: "info"}, &buf)

	_ = parent.WithField("child", true)
	parent.Info("parent only")

	assert.NotContains(t, buf.String(), "child=")
}

func TestErrorWithErr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, &buf)

	logger.ErrorWithErr("generation failed", errors.New("timeout"))
	logger.ErrorWithErr("no cause", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "error=timeout")
	assert.NotContains(t, lines[1], "error=")
}

func TestNewLoggerFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, err := NewLogger(config.LoggingConfig{Level: "info", Output: "file", File: logPath})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewLoggerRejectsBadOutput(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)

	_, err = NewLogger(config.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer

	previous := GetLogger()
	t.Cleanup(func() { SetLogger(previous) })

	SetLogger(NewWithWriter(config.LoggingConfig{Level: "debug"}, &buf))

	WithField("operation", "sync").Infof("loaded %d schemas", 4)

	err := LoggerMiddleware("retrieve", func() error { return errors.New("store offline") })
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "loaded 4 schemas")
	assert.Contains(t, out, "operation=sync")
	assert.Contains(t, out, "Operation failed")
	assert.Contains(t, out, "store offline")

	SetLogger(nil)
	assert.NotPanics(t, func() { Info("dropped") })
}
