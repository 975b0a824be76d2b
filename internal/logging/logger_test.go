package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/psds-microservice/dispatch-service/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("json", "info", &buf, "dispatch-service")

	logger.Debug("hidden")
	logger.LogError("commit failed", errors.New("db down"), "ticket_id", "t-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "commit failed", record["msg"])
	assert.Equal(t, "db down", record["error"])
	assert.Equal(t, "t-1", record["ticket_id"])
	assert.Equal(t, "dispatch-service", record["service"])
}

func TestTextLoggerDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("text", "debug", &buf, "svc")

	logger.Debug("sweep", "assigned", 2)
	assert.Contains(t, buf.String(), "msg=sweep")
	assert.Contains(t, buf.String(), "assigned=2")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, expected := range tests {
		assert.Equal(t, expected, logging.ParseLevel(in), in)
	}
}
