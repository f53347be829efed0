package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, handler := NewTestLogger(t)
	logger = logger.With(slog.String("component", "test"))

	logger.Info("first message", slog.String("key", "value"))
	logger.Warn("second message")

	assert.Len(t, handler.Records(), 2)
	assert.True(t, handler.ContainsMessage("first"))
	assert.True(t, handler.ContainsAttr("key", "value"))
	assert.True(t, handler.ContainsAttr("component", "test"))
	assert.Equal(t, 1, handler.CountLevel(slog.LevelWarn))
}
