package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger_JSONDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Output: &buf})

	logger.Debug("validated", "document_type", "PolicyDefinition")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "validated", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "PolicyDefinition", entry["document_type"])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "text", Output: &buf})

	logger.Info("ready", "address", ":8080")
	assert.True(t, strings.Contains(buf.String(), "msg=ready"))
	assert.True(t, strings.Contains(buf.String(), "address=:8080"))
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLogger_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "loud", Output: &buf})

	logger.Debug("dropped")
	logger.Info("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLogger(Config{Output: &buf}), "pipeline")
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"component":"pipeline"`)

	assert.NotNil(t, Component(nil, "api"))
}
