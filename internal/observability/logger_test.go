// File: internal/observability/logger_test.go
package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prodscout/prodscout-cli/internal/config"
)

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "prodscout-test",
	}
}

func TestInitializeWritesToConsoleCore(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	Initialize(testLoggerConfig(), buf)

	GetLogger().Info("hello")
	require.NoError(t, GetLogger().Sync())

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"hello"`)
	assert.Contains(t, lines[0], "prodscout-test")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &zaptest.Buffer{}
	second := &zaptest.Buffer{}
	Initialize(testLoggerConfig(), first)
	Initialize(testLoggerConfig(), second)

	GetLogger().Info("routed")
	require.NoError(t, GetLogger().Sync())

	assert.NotEmpty(t, first.Lines())
	assert.Empty(t, second.Lines())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	cfg := testLoggerConfig()
	cfg.Level = "not-a-level"
	Initialize(cfg, buf)

	GetLogger().Debug("hidden")
	GetLogger().Info("shown")
	require.NoError(t, GetLogger().Sync())

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"shown"`)
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	assert.NotNil(t, GetLogger())
}
