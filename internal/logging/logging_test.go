package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	require.NotEmpty(t, dir)
	assert.Contains(t, dir, ".biblestudyai")
	assert.Contains(t, dir, "logs")
}

func TestDefaultLogPath(t *testing.T) {
	assert.Equal(t, "server.log", filepath.Base(DefaultLogPath()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestDebugConfig(t *testing.T) {
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "server.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Info("pipeline_complete", slog.String("query", "who is Daniel"), slog.Int("results", 3))
	cleanup()

	f, err := os.Open(cfg.FilePath)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "log file should contain at least one line")

	var record map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
	assert.Equal(t, "pipeline_complete", record["msg"])
	assert.Equal(t, "who is Daniel", record["query"])
}

func TestSetup_NoFilePathUsesStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, logger)
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWithLogger_RoundTrip(t *testing.T) {
	var sb strings.Builder
	logger := slog.New(slog.NewJSONHandler(&sb, nil))

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")

	assert.Contains(t, sb.String(), "hello")
}
