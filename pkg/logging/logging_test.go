package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{" Warn ", LevelWarn},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("yaml"))
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})
	log.Info("hidden")
	log.Warn("unmatched request", "path", "/orders/abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "unmatched request", entry["msg"])
	assert.Equal(t, "/orders/abc", entry["path"])
}

func TestNew_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(Config{Level: LevelDebug, Output: &buf}).Debug("request matched", "interaction", 0)
	assert.Contains(t, buf.String(), "msg=\"request matched\"")
	assert.Contains(t, buf.String(), "interaction=0")
}

func TestNop(t *testing.T) {
	t.Parallel()

	log := Nop()
	assert.NotNil(t, log)
	log.Error("discarded")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{EnvLevel: "debug"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := ApplyEnv(DefaultConfig(), lookup)
	assert.Equal(t, LevelDebug, cfg.Level)

	cfg = ApplyEnv(DefaultConfig(), func(string) (string, bool) { return "", false })
	assert.Equal(t, LevelInfo, cfg.Level)
}
