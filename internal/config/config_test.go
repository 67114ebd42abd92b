package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CPMBOARD_DB_PATH", "ADMIN_SECRET_PATH", "ADMIN_SESSION_TTL",
		"LOG_LEVEL", "LOG_FORMAT", "SECURE_COOKIES", "TRACING_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "data/cpmboard.db", cfg.DBPath)
	assert.Equal(t, "cpm-7f4b1c2e9a3d6f0b", cfg.AdminSecretPath)
	assert.Equal(t, time.Hour, cfg.AdminSessionTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.SecureCookies)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CPMBOARD_DB_PATH", "/var/lib/cpmboard/board.db")
	t.Setenv("ADMIN_SECRET_PATH", "my-own-entry")
	t.Setenv("ADMIN_SESSION_TTL", "30m")
	t.Setenv("SECURE_COOKIES", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/var/lib/cpmboard/board.db", cfg.DBPath)
	assert.Equal(t, "my-own-entry", cfg.AdminSecretPath)
	assert.Equal(t, 30*time.Minute, cfg.AdminSessionTTL)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ADMIN_SESSION_TTL", "not-a-duration")
	t.Setenv("SECURE_COOKIES", "not-a-bool")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.AdminSessionTTL)
	assert.False(t, cfg.SecureCookies)
}

func TestLoad_NegativeTTLFallsBack(t *testing.T) {
	t.Setenv("ADMIN_SESSION_TTL", "-5m")

	cfg := Load()
	assert.Equal(t, time.Hour, cfg.AdminSessionTTL)
}
