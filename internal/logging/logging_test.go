package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	t.Run("json", func(t *testing.T) {
		SetLevel(slog.LevelInfo)
		var buf bytes.Buffer
		New(&buf, "json").Info("server started", "address", "relay.demo")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "server started", record["msg"])
		assert.Equal(t, "relay.demo", record["address"])
	})

	t.Run("text has no color off a terminal", func(t *testing.T) {
		SetLevel(slog.LevelInfo)
		var buf bytes.Buffer
		New(&buf, "text").Info("server started", "workers", 4)

		out := buf.String()
		assert.Contains(t, out, "server started")
		assert.Contains(t, out, "workers=4")
		assert.NotContains(t, out, "\x1b[")
	})

	t.Run("level applies to existing loggers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, "text")

		SetLevel(slog.LevelWarn)
		logger.Info("hidden")
		assert.Empty(t, buf.String())
		assert.Equal(t, slog.LevelWarn, Level())

		SetLevel(slog.LevelDebug)
		logger.Debug("visible")
		assert.Contains(t, buf.String(), "visible")
	})
}
