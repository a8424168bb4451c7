package slogger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
	}{
		{"debug level", "debug", LevelDebug},
		{"info level", "info", LevelInfo},
		{"warn level", "warn", LevelWarn},
		{"error level", "error", LevelError},
		{"uppercase", "ERROR", LevelError},
		{"mixed case", "DeBuG", LevelDebug},
		{"unknown level", "verbose", DefaultLogLevel},
		{"empty string", "", DefaultLogLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, LevelFromString(tc.input))
		})
	}
}

func TestDevNullLogger(t *testing.T) {
	logger := NewDevNullLogger()

	// These calls should not panic
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")

	withLogger := logger.With("context", "value")
	require.NotNil(t, withLogger)
	require.IsType(t, &DevNullLogger{}, withLogger)
}

func TestSlogger(t *testing.T) {
	logger := New(LevelDebug)
	require.NotNil(t, logger)

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")

	withLogger := logger.With("execution_id", "exec_123")
	require.NotNil(t, withLogger)
	require.IsType(t, &Slogger{}, withLogger)
}

func TestContextFunctions(t *testing.T) {
	logger := NewDevNullLogger()

	ctx := WithLogger(context.Background(), logger)
	require.Equal(t, logger, Ctx(ctx))

	// A context without a logger yields a usable default
	fallback := Ctx(context.Background())
	require.NotNil(t, fallback)
	require.IsType(t, &Slogger{}, fallback)
}
