package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("info", "json", &buf)

	tokenLog := Component(logger, "token")
	tokenLog.Info().Str("tenant_id", "t1").Msg("refreshed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "tradewatch", entry["service"])
	require.Equal(t, "token", entry["component"])
	require.Equal(t, "t1", entry["tenant_id"])
	require.Equal(t, "refreshed", entry["message"])
}

func TestSetupLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("warn", "json", &buf)

	logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	require.NotZero(t, buf.Len())
}

func TestSetupBadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("nonsense", "json", &buf)
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
