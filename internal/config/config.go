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
		Level string `yaml:"level"`
	} `yaml:"log"`
	Admin struct {
		Token string `yaml:"token"`
	} `yaml:"admin"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Content struct {
		TTL string `yaml:"ttl"`
	} `yaml:"content"`
	Session struct {
		Duration                 string `yaml:"duration"`
		DefaultTimerSeconds      int    `yaml:"default_timer_seconds"`
		SelectPolicy             string `yaml:"select_policy"`
		BroadcastAllOnDisconnect bool   `yaml:"broadcast_all_on_disconnect"`
	} `yaml:"session"`
	Sweeper struct {
		Interval string `yaml:"interval"`
	} `yaml:"sweeper"`
}

// Load reads YAML config from path. Env vars ADMIN_TOKEN, POSTGRES_URL and
// REDIS_ADDR override the file so deployments can keep secrets out of it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
