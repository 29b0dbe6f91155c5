package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, "converter", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("step", "exiftool").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "converter", entry["service"])
	assert.Equal(t, "exiftool", entry["step"])
	assert.Equal(t, "visible", entry["message"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "loud"}, "worker", &buf)

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
