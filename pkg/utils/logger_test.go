package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_FileOutputAndAtomicLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, level, err := NewLogger(LoggerConfig{Level: "warn", OutputPath: path, Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	level.SetLevel(zapcore.InfoLevel)
	logger.Info("visible")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("expense_id", "abc", 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "expense_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}

func TestKVLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	kv := NewKVLogger(zap.New(core))

	kv.Info("Expense submitted", "expense_id", "e-1", "has_receipt", true)
	kv.Error("Failed to insert expense", "error", errors.New("disk full"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "e-1", entries[0].ContextMap()["expense_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])
}
