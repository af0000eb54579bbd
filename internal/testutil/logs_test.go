package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRecorder_CapturesRecords(t *testing.T) {
	rec := NewLogRecorder()
	log := rec.Logger()

	log.Warn("recursion loop detected", "chain", "a", "line", 3)
	log.Info("read rules", "rules", 2)
	log.Warn("recursion loop detected", "chain", "b", "line", 1)

	assert.Equal(t, 2, rec.Count("recursion loop detected"))
	assert.Equal(t, []string{"recursion loop detected", "recursion loop detected"}, rec.Messages(slog.LevelWarn))

	first, ok := rec.Find("recursion loop detected")
	require.True(t, ok)
	assert.Equal(t, "a", first.Attrs["chain"])
	assert.Equal(t, int64(3), first.Attrs["line"])
}

func TestLogRecorder_WithAttrsSharesStorage(t *testing.T) {
	rec := NewLogRecorder()
	log := rec.Logger().With("component", "chain")

	log.Info("hello")

	got, ok := rec.Find("hello")
	require.True(t, ok)
	assert.Equal(t, "chain", got.Attrs["component"])
}

func TestLogRecorder_FindMissing(t *testing.T) {
	rec := NewLogRecorder()
	_, ok := rec.Find("nothing")
	assert.False(t, ok)
	assert.Zero(t, rec.Count("nothing"))
}
