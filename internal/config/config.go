// Package config loads and validates runtime settings from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// LogPath is the log file; empty logs to stderr.
	LogPath string `mapstructure:"LOG_PATH"`

	// StoreBackend selects where users are persisted: file, redis or postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// StorePath is the JSON file used by the file backend.
	StorePath string `mapstructure:"STORE_PATH"`
	// DatabaseURL is the Postgres DSN for the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreTable is the Postgres table name.
	StoreTable string `mapstructure:"STORE_TABLE"`
	// RedisURL is the redis:// URL for the redis backend.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisPrefix namespaces the Redis keys.
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	// FakeSeed seeds the fake user generator; 0 picks a random seed.
	FakeSeed uint64 `mapstructure:"FAKE_SEED"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_PATH", "logs/user.log")
	v.SetDefault("STORE_BACKEND", BackendFile)
	v.SetDefault("STORE_PATH", "db/user_db.json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_TABLE", "user_documents")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_PREFIX", "userbook")
	v.SetDefault("FAKE_SEED", 0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New("config: LOG_FORMAT must be text or json")
	}

	switch c.StoreBackend {
	case BackendFile:
		if c.StorePath == "" {
			return errors.New("config: STORE_PATH must be set for the file backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres backend")
		}
	default:
		return errors.New("config: STORE_BACKEND must be file, redis or postgres")
	}
	return nil
}
