// Package config loads application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SNS      SNSConfig      `yaml:"sns"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the optional suppression-cache settings.
type RedisConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the suppression cache TTL.
func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// SNSConfig holds webhook authentication settings.
type SNSConfig struct {
	CertCacheTTLMinutes int `yaml:"cert_cache_ttl_minutes"`
}

// CertCacheTTL returns the signing-certificate cache TTL.
func (s SNSConfig) CertCacheTTL() time.Duration {
	return time.Duration(s.CertCacheTTLMinutes) * time.Minute
}

// TrackingConfig holds reconciliation policy settings. The match window
// and the dedup window are separate knobs on purpose; see the tracking
// service.
type TrackingConfig struct {
	OwningDomain       string `yaml:"owning_domain"`
	MatchWindowMinutes int    `yaml:"match_window_minutes"`
	DedupWindowMinutes int    `yaml:"dedup_window_minutes"`
}

// MatchWindow returns the notification matching window.
func (t TrackingConfig) MatchWindow() time.Duration {
	return time.Duration(t.MatchWindowMinutes) * time.Minute
}

// DedupWindow returns the send-path de-duplication window.
func (t TrackingConfig) DedupWindow() time.Duration {
	return time.Duration(t.DedupWindowMinutes) * time.Minute
}

// Load reads the YAML file at path and applies defaults. A missing file
// is not an error when path is empty; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.CacheTTLSeconds == 0 {
		cfg.Redis.CacheTTLSeconds = 300
	}
	if cfg.SNS.CertCacheTTLMinutes == 0 {
		cfg.SNS.CertCacheTTLMinutes = 60
	}
	if cfg.Tracking.MatchWindowMinutes == 0 {
		cfg.Tracking.MatchWindowMinutes = 10
	}
	if cfg.Tracking.DedupWindowMinutes == 0 {
		cfg.Tracking.DedupWindowMinutes = 5
	}
	return &cfg, nil
}

// LoadFromEnv loads the YAML config and overlays environment variables.
// A .env file in the working directory is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("OWNING_DOMAIN"); v != "" {
		cfg.Tracking.OwningDomain = v
	}
	return cfg, nil
}
