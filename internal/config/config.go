// Package config loads the server configuration for the tether CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Redis configures the optional Redis frame transport.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Channel names the duplex channel pair; the server subscribes on
	// "<channel>:in" and publishes on "<channel>:out", each under the
	// transport's "tether:frames:" prefix.
	Channel string `yaml:"channel"`
}

// Server is the tether serve configuration.
type Server struct {
	Listen   string `yaml:"listen"`
	Path     string `yaml:"path"`
	LogLevel string `yaml:"log_level"`
	Metrics  bool   `yaml:"metrics"`
	Redis    *Redis `yaml:"redis"`
}

// Default returns the configuration used when no file is given.
func Default() *Server {
	return &Server{
		Listen:   ":8080",
		Path:     "/rpc",
		LogLevel: "info",
		Metrics:  true,
	}
}

// Load reads a YAML configuration file, filling unset fields from Default.
func Load(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Path == "" {
		cfg.Path = "/rpc"
	}
	return cfg, nil
}
