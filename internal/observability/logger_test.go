// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes levels and suffixes names", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "e2e",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		Component("orchestrator").Info("Scenario started.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "\x1b[32mINFO"+colorReset)
		assert.Contains(t, out, "e2e.orchestrator.")
		assert.Contains(t, out, "Scenario started.")
	})

	t.Run("json format emits structured fields", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "e2e"}, zapcore.AddSync(&buf))
		GetLogger().Warn("Fixture missing.", zap.String("path", "tests/support/data.json"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "e2e", entry["logger"])
		assert.Equal(t, "Fixture missing.", entry["msg"])
		assert.Equal(t, "tests/support/data.json", entry["path"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		GetLogger().Info("quiet")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("log file receives json entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logPath := filepath.Join(t.TempDir(), "e2e.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logPath, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))
		GetLogger().Error("Actor failed.", zap.String("actor", "login"))
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Actor failed."`)
		assert.Contains(t, string(content), `"actor":"login"`)
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.AddSync(&buf))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("hello")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "first"))
		assert.False(t, strings.Contains(buf.String(), "second"))
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "fallback must not be stored globally")
}
