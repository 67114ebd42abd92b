package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all server settings, sourced from the environment with an
// optional .env file for development.
type Config struct {
	Port            string
	DBPath          string
	AdminSecretPath string
	AdminSessionTTL time.Duration
	LogLevel        string
	LogFormat       string
	SecureCookies   bool
	TracingEnabled  bool
}

// Load reads the .env file if one is present, then the environment, falling
// back to development defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "3000"),
		DBPath:          getEnv("CPMBOARD_DB_PATH", "data/cpmboard.db"),
		AdminSecretPath: getEnv("ADMIN_SECRET_PATH", "cpm-7f4b1c2e9a3d6f0b"),
		AdminSessionTTL: getDuration("ADMIN_SESSION_TTL", time.Hour),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		SecureCookies:   getBool("SECURE_COOKIES", false),
		TracingEnabled:  getBool("TRACING_ENABLED", false),
	}

	if cfg.AdminSecretPath == "cpm-7f4b1c2e9a3d6f0b" {
		log.Warn().Msg("ADMIN_SECRET_PATH is the default value; set your own secret path in production")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using fallback")
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using fallback")
		return fallback
	}
	return parsed
}
