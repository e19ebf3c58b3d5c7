// Package config loads the mapper settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "NEOGRAPH_"

// Config holds all mapper configuration
type Config struct {
	Neo4j Neo4jConfig

	// Connection is the name bound to every rehydrated entity.
	Connection string `env:"CONNECTION" envDefault:"default"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"`
	PerPage    int    `env:"PER_PAGE" envDefault:"15"`
	PageName   string `env:"PAGE_NAME" envDefault:"page"`
}

// Neo4jConfig holds the driver connection settings
type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI" envDefault:"neo4j://localhost:7687"`
	Username string `env:"NEO4J_USERNAME" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j uri is required")
	}
	if c.PerPage <= 0 {
		return fmt.Errorf("config: per page must be positive, got %d", c.PerPage)
	}
	return nil
}
