package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s, err := FromMap(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, s.FetchTimeout)
	assert.Equal(t, 256, s.CacheSize)
	assert.Equal(t, 30*time.Minute, s.SessionTTL)
	assert.Equal(t, "EPSG:3857", s.DisplayCRS)
	assert.Empty(t, s.RedisURL)
}

func TestOverrides(t *testing.T) {
	s, err := FromMap(map[string]string{
		"ASSETS_FETCH_TIMEOUT": "2s",
		"ASSETS_REDIS_URL":     "redis://localhost:6379/1",
		"ASSETS_DISPLAY_CRS":   "EPSG:4326",
		"FETCH_TIMEOUT":        "1h",
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.FetchTimeout)
	assert.Equal(t, "redis://localhost:6379/1", s.RedisURL)
	assert.Equal(t, "EPSG:4326", s.DisplayCRS)
}

func TestInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration": {"ASSETS_FETCH_TIMEOUT": "soon"},
		"zero timeout": {"ASSETS_FETCH_TIMEOUT": "0s"},
		"zero rate":    {"ASSETS_FETCH_RATE": "0"},
		"bad crs":      {"ASSETS_DISPLAY_CRS": "EPSG:27700"},
		"bad level":    {"ASSETS_LOG_LEVEL": "loud"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromMap(vars)
			assert.Error(t, err)
		})
	}
}

func TestLogger(t *testing.T) {
	s, err := FromMap(map[string]string{"ASSETS_LOG_LEVEL": "warn", "ASSETS_LOG_FORMAT": "json"})
	require.NoError(t, err)

	var buf bytes.Buffer
	log := s.Logger(&buf)
	log.Info("dropped")
	log.Warn("kept", slog.String("layer", "streetlights"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "streetlights", rec["layer"])
}
