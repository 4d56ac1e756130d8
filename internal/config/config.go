package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sessions SessionsConfig `yaml:"sessions"`
	Stream   StreamConfig   `yaml:"stream"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SessionsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
	CancelGrace   time.Duration `yaml:"cancel_grace"`
	CreatedIdle   time.Duration `yaml:"created_idle"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type StreamConfig struct {
	BacklogCapacity int `yaml:"backlog_capacity"`
	SubscriberQueue int `yaml:"subscriber_queue"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Sessions: SessionsConfig{
			MaxConcurrent: 10,
			RunTimeout:    30 * time.Minute,
			CancelGrace:   10 * time.Second,
			CreatedIdle:   time.Hour,
			Retention:     24 * time.Hour,
			SweepInterval: time.Second,
		},
		Stream: StreamConfig{
			BacklogCapacity: 256,
			SubscriberQueue: 64,
		},
	}
}

// Default returns the built-in configuration, used when no config file is
// given on the command line.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML config file, overlaying it on the built-in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
