package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/minaconn/internal/config"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(config.Logging{Level: "DEBUG"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger.Info().Str("uri", "postgresql://localhost/db").Msg("Connecting")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Connecting", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestSetupTextAndDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(config.Logging{Format: "text"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Debug().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(config.Logging{Level: "loud"}, nil)
	assert.Error(t, err)
}
