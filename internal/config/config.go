package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	HTTPAddr       string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath         string     `env:"DB_PATH" envDefault:"data/civilens.db"`
	LogLevel       slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SessionBackend string     `env:"SESSION_BACKEND" envDefault:"sqlite"`
	RedisURL       string     `env:"REDIS_URL"`

	// DetectURL is the detection service endpoint. Empty means every
	// detection fails.
	DetectURL     string        `env:"DETECT_URL"`
	DetectTimeout time.Duration `env:"DETECT_TIMEOUT" envDefault:"0s"`

	// AdminPasswordHash is a bcrypt hash guarding the complaints listing.
	// Empty disables the listing.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"false"`
}

// Load reads a .env file when one exists, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	switch c.SessionBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("SESSION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.DetectTimeout < 0 {
		return fmt.Errorf("DETECT_TIMEOUT must not be negative, got %s", c.DetectTimeout)
	}
	return nil
}
