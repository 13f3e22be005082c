package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("ARCHIVE_AFTER_DAYS", "")

	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 90, cfg.ArchiveAfterDays)
	assert.Equal(t, 24*time.Hour, cfg.ArchiveInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "edumarket", cfg.JWT.Issuer)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ARCHIVE_INTERVAL", "90m")
	t.Setenv("UNREAD_CACHE_TTL", "not-a-duration")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.edumarket.test, https://admin.edumarket.test,")

	cfg := Load()

	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Minute, cfg.ArchiveInterval)
	assert.Equal(t, 5*time.Minute, cfg.UnreadCacheTTL)
	assert.Equal(t, []string{"https://app.edumarket.test", "https://admin.edumarket.test"}, cfg.AllowedOrigins)
}

func TestLoad_NonPositiveIntervalsFallBack(t *testing.T) {
	t.Setenv("ARCHIVE_INTERVAL", "0s")
	t.Setenv("UNREAD_CACHE_TTL", "-1m")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.ArchiveInterval)
	assert.Equal(t, 5*time.Minute, cfg.UnreadCacheTTL)
}
