package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "event_id", "e1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.Equal(t, "e1", line["event_id"])
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)

	_, err = NewLogger(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}
