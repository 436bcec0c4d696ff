// Package config loads process configuration from environment variables,
// directly modeled on the teacher's internal/infrastructure/config/config.go
// getEnv/getEnvInt Load() pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process-wide configuration for cmd/server.
type Config struct {
	// Server
	Port     string
	AdminKey string

	// Redis (queue backend + projection store)
	RedisHost string
	RedisPort string
	RedisAuth string
	RedisDB   int

	// Worker
	ConcurrencyDefault int
	MaxStalledCount    int

	// Logging
	LogLevel string
	NodeEnv  string

	// Account directory
	DatabaseURL string

	// AT Protocol
	ATProtoPDSHost  string
	OutboundProxyURL string
}

// Load loads configuration from environment variables, applying the same
// defaults the teacher's Load() does: required values fail fast, everything
// else falls back to a sane local-dev default.
func Load() (*Config, error) {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	adminKey := getEnv("ADMIN_KEY", "")
	if adminKey == "" {
		return nil, fmt.Errorf("ADMIN_KEY environment variable is required")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		AdminKey: adminKey,

		RedisHost: getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisAuth: getEnv("REDIS_AUTH", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		ConcurrencyDefault: getEnvInt("CONCURRENCY_DEFAULT", 5),
		MaxStalledCount:    getEnvInt("MAX_STALLED_COUNT", 2),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		NodeEnv:  getEnv("NODE_ENV", "development"),

		DatabaseURL: databaseURL,

		ATProtoPDSHost:   getEnv("ATPROTO_PDS_HOST", "https://bsky.social"),
		OutboundProxyURL: getEnv("OUTBOUND_PROXY_URL", ""),
	}, nil
}

// RedisAddr returns the host:port pair asynq.RedisClientOpt and go-redis
// both expect.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
