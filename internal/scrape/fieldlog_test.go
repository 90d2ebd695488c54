// File: internal/scrape/fieldlog_test.go
package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedStepLogger() (*StepLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewStepLogger(zap.New(core)), logs
}

func TestStepCounter(t *testing.T) {
	s, logs := observedStepLogger()

	assert.Equal(t, 1, s.Step("Check session"))
	assert.Equal(t, 2, s.Step("Navigate to listing"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Step 1: Check session", entries[0].Message)
	assert.Equal(t, "Step 2: Navigate to listing", entries[1].Message)
}

func TestFieldStatusLines(t *testing.T) {
	s, logs := observedStepLogger()

	s.Field("title", "Smart Blender", true)
	s.Field("description", "", false)
	s.FieldCount("additional_images", 3)
	s.FieldCount("trend_data", 0)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "✓ title", entries[0].Message)
	assert.Equal(t, "Smart Blender", entries[0].ContextMap()["value"])
	assert.Equal(t, "✗ description", entries[1].Message)
	assert.Equal(t, "✓ additional_images", entries[2].Message)
	assert.Equal(t, int64(3), entries[2].ContextMap()["count"])
	assert.Equal(t, "✗ trend_data", entries[3].Message)
}

func TestFieldValueTruncation(t *testing.T) {
	s, logs := observedStepLogger()

	long := strings.Repeat("a", 200)
	s.Field("description", long, true)

	got := logs.All()[0].ContextMap()["value"].(string)
	assert.Len(t, []rune(got), fieldValueTruncateAt+1)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTimerLogsElapsed(t *testing.T) {
	s, logs := observedStepLogger()

	stop := s.Timer("scrape")
	stop()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Started.", entries[0].Message)
	assert.Equal(t, "Finished.", entries[1].Message)
	assert.Contains(t, entries[1].ContextMap(), "elapsed")
}
