package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/zargar/internal/config"
)

func TestNewLogger_ServiceFallsBackToBinary(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "info"}, "zargar-worker")
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "zargar-worker", line["service"])
	assert.Equal(t, "hello", line["message"])
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, &config.Config{LogLevel: "warn", ServiceName: "api"}, "core-api")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = newLogger(&bytes.Buffer{}, &config.Config{LogLevel: "nonsense"}, "core-api")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestTemporalLogger_KeyVals(t *testing.T) {
	var buf bytes.Buffer
	tl := NewTemporalLogger(zerolog.New(&buf))
	tl.Error("activity failed", "ActivityType", "RestoreTenantSchema", "Error", errors.New("boom"), "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "temporal", line["component"])
	assert.Equal(t, "RestoreTenantSchema", line["ActivityType"])
	assert.Equal(t, "boom", line["Error"])
	assert.Equal(t, "dangling", line["extra"])
	assert.Equal(t, "error", line["level"])
}
