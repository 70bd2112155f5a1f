// Package config reads settings from an optional YAML file, a .env file and the environment, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath          string        `yaml:"db_path"`
	HTTPAddr        string        `yaml:"http_addr"`
	Migrations      string        `yaml:"migrations"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		DBPath:          "fpv_bracket.db",
		HTTPAddr:        ":8080",
		Migrations:      "file://migrations",
		SessionLifetime: 24 * time.Hour,
		RateLimit:       10,
		RateBurst:       20,
	}
}

// Load builds the configuration. A missing YAML file or .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("FPV_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FPV_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("FPV_MIGRATIONS"); v != "" {
		cfg.Migrations = v
	}
	if v := os.Getenv("FPV_SESSION_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FPV_SESSION_LIFETIME value: %w", err)
		}
		cfg.SessionLifetime = d
	}
	if v := os.Getenv("FPV_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid FPV_RATE_LIMIT value: %w", err)
		}
		cfg.RateLimit = f
	}
	if v := os.Getenv("FPV_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FPV_RATE_BURST value: %w", err)
		}
		cfg.RateBurst = n
	}
	if v := os.Getenv("FPV_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("db path must not be empty")
	case c.HTTPAddr == "":
		return fmt.Errorf("http address must not be empty")
	case c.SessionLifetime <= 0:
		return fmt.Errorf("session lifetime must be positive, got %s", c.SessionLifetime)
	case c.RateLimit <= 0:
		return fmt.Errorf("rate limit must be positive, got %v", c.RateLimit)
	case c.RateBurst < 1:
		return fmt.Errorf("rate burst must be at least 1, got %d", c.RateBurst)
	}
	return nil
}
