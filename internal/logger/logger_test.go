package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecord struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Stage string `json:"stage"`
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Logger
	defer func() { Logger = originalLogger }()
	Setup(&buf, "debug", "json")

	tests := []struct {
		name  string
		fn    func(msg string, args ...any)
		level string
	}{
		{name: "Info", fn: Info, level: "INFO"},
		{name: "Error", fn: Error, level: "ERROR"},
		{name: "Warn", fn: Warn, level: "WARN"},
		{name: "Debug", fn: Debug, level: "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn("message", "stage", "ingest")

			var rec logRecord
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, "message", rec.Msg)
			assert.Equal(t, tt.level, rec.Level)
			assert.Equal(t, "ingest", rec.Stage)
		})
	}
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Logger
	defer func() { Logger = originalLogger }()
	Setup(&buf, "warn", "text")

	Info("hidden")
	assert.Empty(t, buf.String())

	Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
