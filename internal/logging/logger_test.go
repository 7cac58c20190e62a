package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gardiens/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "gardiens-test",
		Environment: "test",
		Version:     "1.0.0",
	}

	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("StderrDebug", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "DEBUG", Output: "stderr"}, appCfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("Console", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "console"}, appCfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})

	t.Run("File", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gardiens.log")
		logger, closer, err := New(config.LoggingConfig{Level: "info", Output: "file", FilePath: logPath}, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)

		logger.Info().Str("booking_ref", "abc").Msg("booking created")
		require.NoError(t, closer.Close())

		raw, err := os.ReadFile(logPath)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &entry))
		assert.Equal(t, "gardiens-test", entry["app"])
		assert.Equal(t, "test", entry["env"])
		assert.Equal(t, "abc", entry["booking_ref"])
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, appCfg)
		assert.Error(t, err)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		logger, _, err := New(config.LoggingConfig{Level: "loud"}, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Component(&base, "pricing").Info().Msg("quoted")
	assert.Contains(t, buf.String(), `"component":"pricing"`)

	nop := Component(nil, "x")
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())
}
