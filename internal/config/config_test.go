package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "ANALYZE_PER_MINUTE", "MINIO_USE_SSL", "ANALYSIS_CACHE_TTL_SECONDS", "REDIS_URL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 6, cfg.AnalyzePerMinute)
	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, 24*time.Hour, cfg.AnalysisCacheTTL)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("ANALYZE_PER_MINUTE", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("ANALYSIS_CACHE_TTL_SECONDS", "60")
	cfg := Load()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 6, cfg.AnalyzePerMinute)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, time.Minute, cfg.AnalysisCacheTTL)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("article_id", "art_1").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "art_1", entry["article_id"])
	assert.Equal(t, "annotator", entry["service"])

	buf.Reset()
	consoleLogger := NewLogger("bogus", "console", &buf)
	consoleLogger.Info().Msg("plain")
	assert.Contains(t, buf.String(), "plain")
	assert.False(t, json.Valid(buf.Bytes()))
}
