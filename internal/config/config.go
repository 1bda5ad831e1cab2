package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		// Backend is memory, redis or postgres.
		Backend  string `yaml:"backend"`
		Timeout  string `yaml:"timeout"`
		// Registry guards one live attempt per student: memory or redis. Empty follows Backend.
		Registry string `yaml:"registry"`
	} `yaml:"storage"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		Prefix     string `yaml:"prefix"`
		// AttemptTTL bounds how long a crashed instance keeps a student locked out.
		AttemptTTL string `yaml:"attempt_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		Tick             string `yaml:"tick"`
		ViolationWarning int    `yaml:"violation_warning"`
		ViolationLimit   int    `yaml:"violation_limit"`
	} `yaml:"session"`
}

// Default is the configuration used when no file exists: in-memory storage, one-second ticks.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Storage.Backend = "memory"
	cfg.Session.Tick = "1s"
	cfg.Session.ViolationWarning = 2
	cfg.Session.ViolationLimit = 3
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Session.ViolationLimit <= 0 {
		cfg.Session.ViolationLimit = 3
	}
	if cfg.Session.ViolationWarning <= 0 {
		cfg.Session.ViolationWarning = 2
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
