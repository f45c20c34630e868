package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's tunable settings, loaded from YAML with
// environment overrides for infrastructure endpoints.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Transport struct {
		Kind          string `yaml:"kind"` // "nats" or "memory"
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"transport"`
	Game struct {
		PublishMaxRetries int `yaml:"publish_max_retries"`
		PublishRetryMs    int `yaml:"publish_retry_ms"`
		SubscriberQueue   int `yaml:"subscriber_queue"`
	} `yaml:"game"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Transport.Kind = "nats"
	cfg.Transport.URL = "nats://localhost:4222"
	cfg.Transport.SubjectPrefix = "minigame.events"
	cfg.Game.PublishMaxRetries = 3
	cfg.Game.PublishRetryMs = 200
	cfg.Game.SubscriberQueue = 64
	return cfg
}

// loadConfig reads the YAML config at path (optional) and applies
// environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Transport.Kind = getEnv("TRANSPORT", cfg.Transport.Kind)
	cfg.Transport.URL = getEnv("NATS_URL", cfg.Transport.URL)

	return cfg, nil
}

func (c *Config) publishRetryDelay() time.Duration {
	return time.Duration(c.Game.PublishRetryMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
