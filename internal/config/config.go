package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TransportConfig selects and parameterizes the stream collaborator.
type TransportConfig struct {
	// Provider is "ws" or "nats".
	Provider  string `yaml:"provider"`
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
	NatsURL   string `yaml:"nats_url"`
}

// StagingConfig controls durable staging of the mutation queue and cache.
type StagingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig controls the remote document cache.
type CacheConfig struct {
	// GCEnabled allows eviction of cache entries no active target references.
	GCEnabled bool `yaml:"gc_enabled"`
}

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Staging   StagingConfig   `yaml:"staging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// LoadConfig builds the effective configuration: defaults, then an optional
// config/config.yml, then environment overrides.
func LoadConfig() *Config {
	cfg := &Config{
		Transport: TransportConfig{
			Provider: "ws",
			URL:      "ws://localhost:8080/v1/realtime",
			NatsURL:  "nats://localhost:4222",
		},
		Staging: StagingConfig{
			Path: "syntrix-staging.db",
		},
	}

	if data, err := os.ReadFile("config/config.yml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("[Config] Ignoring malformed config/config.yml: %v", err)
		}
	}

	if v := os.Getenv("SYNTRIX_TRANSPORT"); v != "" {
		cfg.Transport.Provider = v
	}
	if v := os.Getenv("SYNTRIX_URL"); v != "" {
		cfg.Transport.URL = v
	}
	if v := os.Getenv("SYNTRIX_AUTH_TOKEN"); v != "" {
		cfg.Transport.AuthToken = v
	}
	if v := os.Getenv("SYNTRIX_NATS_URL"); v != "" {
		cfg.Transport.NatsURL = v
	}
	if v := os.Getenv("SYNTRIX_STAGING_PATH"); v != "" {
		cfg.Staging.Enabled = true
		cfg.Staging.Path = v
	}
	if v := os.Getenv("SYNTRIX_CACHE_GC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.GCEnabled = b
		}
	}

	return cfg
}
