package config

import (
	"os"
	"time"

	"cdss/internal/errors"

	"github.com/joho/godotenv"
)

// Config is the complete application configuration.
type Config struct {
	Database DatabaseConfig `validate:"required"`
	Paths    PathsConfig    `validate:"required"`
	Runtime  RuntimeConfig  `validate:"required"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL string `validate:"required"`
}

// PathsConfig holds file system paths to rule and TAK repositories.
type PathsConfig struct {
	TAKDir   string
	RulesDir string
}

// RuntimeConfig holds tunables for the abstraction and analysis passes.
type RuntimeConfig struct {
	DefaultRelevance time.Duration
	LogLevel         string
}

// Load loads a .env file if present, reads configuration from the
// environment, and validates required fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Paths:    loadPathsConfig(),
		Runtime:  loadRuntimeConfig(),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadPathsConfig() PathsConfig {
	return PathsConfig{
		TAKDir:   getEnvOrDefault("TAK_DIR", "./data/tak"),
		RulesDir: getEnvOrDefault("RULES_DIR", "./data/rules"),
	}
}

func loadRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DefaultRelevance: getEnvDurationOrDefault("RELEVANCE_WINDOW", 24*time.Hour),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "INFO"),
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.InvalidInput("DATABASE_URL is required")
	}
	return nil
}

// Helper functions for environment variable parsing.

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
