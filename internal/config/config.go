package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// TTL applied to active-session snapshots; paused snapshots
		// are written without expiry.
		SnapshotTTL string `yaml:"snapshotTtl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalogue struct {
		Path string `yaml:"path"` // optional JSON catalogue file; takes precedence over postgres
		TTL  string `yaml:"ttl"`  // cache TTL
	} `yaml:"catalogue"`
	Session struct {
		FlushInterval string `yaml:"flushInterval"`
		GCMaxAge      string `yaml:"gcMaxAge"`
	} `yaml:"session"`
	Narrative struct {
		BaseURL string `yaml:"baseUrl"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
	} `yaml:"narrative"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
