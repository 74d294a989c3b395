package log_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joyshmitz/zeroclaw/internal/log"
)

func TestNewJSONHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: buf})

	logger.Info("starting run", "sop_name", "demo")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "starting run", record["msg"])
	assert.Equal(t, "demo", record["sop_name"])
}

func TestWithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := log.WithComponent(log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: buf}), "sop-engine")
	logger.Info("ready")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "sop-engine", record[log.ComponentKey])
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := log.FromEnv()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, log.FormatJSON, cfg.Format)
}

func TestErrorLevelFiltersWarn(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := log.New(&log.Config{Level: "error", Format: log.FormatJSON, Output: buf})
	logger.Warn("should be dropped")
	assert.Empty(t, buf.Bytes())
}
