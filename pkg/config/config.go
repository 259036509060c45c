// Package config loads the sqlguard configuration file.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nsxbet/sqlguard/pkg/dbms"
	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/risk"
	"github.com/nsxbet/sqlguard/pkg/types"
)

// Config represents the configuration for SQL classification
type Config struct {
	// Engine is the dialect used for SQL that is not bound to a database.
	Engine         types.Engine            `yaml:"engine" json:"engine"`
	MaxParseLength int                     `yaml:"max_parse_length" json:"max_parse_length"`
	StrictFallback bool                    `yaml:"strict_fallback" json:"strict_fallback"`
	CacheSize      int                     `yaml:"cache_size" json:"cache_size"`
	Bindings       map[string]dbms.Binding `yaml:"bindings" json:"bindings"`
}

// LoadFromFile loads configuration from a file
func LoadFromFile(filename string) (*Config, error) {
	slog.Debug("Loading config from file", "filename", filename)
	data, err := os.ReadFile(filename)
	if err != nil {
		slog.Debug("Failed to read file", logger.Error(err))
		return nil, errors.Wrapf(err, "failed to read config file %s", filename)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", filename)
	}
	return config, nil
}

// Parse parses a YAML or JSON configuration and applies the defaults.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()

	// Try YAML first, then JSON
	slog.Debug("Attempting YAML unmarshal")
	if yamlErr := yaml.Unmarshal(data, config); yamlErr != nil {
		slog.Debug("YAML unmarshal failed", "error", yamlErr)
		slog.Debug("Attempting JSON unmarshal")
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			slog.Debug("JSON unmarshal failed", logger.Error(err))
			if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
				return nil, err
			}
			return nil, yamlErr
		}
		slog.Debug("JSON unmarshal succeeded")
	} else {
		slog.Debug("YAML unmarshal succeeded")
	}

	if config.Engine == types.Engine_ENGINE_UNSPECIFIED {
		config.Engine = risk.DefaultEngine
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Loaded config", "engine", config.Engine.String(), "bindings_count", len(config.Bindings))
	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine:         risk.DefaultEngine,
		MaxParseLength: risk.DefaultMaxParseLength,
	}
}

// Validate checks the limits and the bindings.
func (c *Config) Validate() error {
	if c.MaxParseLength < 0 {
		return errors.Errorf("max_parse_length must not be negative, got %d", c.MaxParseLength)
	}
	if c.CacheSize < 0 {
		return errors.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	for name, binding := range c.Bindings {
		if !binding.IsDatabase() {
			continue
		}
		if !strings.HasPrefix(name, dbms.BindingPrefix) {
			return errors.Errorf("database binding %s must start with %s", name, dbms.BindingPrefix)
		}
		if _, err := dbms.EngineForDriver(binding.Driver); err != nil {
			return errors.Wrapf(err, "binding %s", name)
		}
		if binding.DSN == "" {
			return errors.Errorf("binding %s has no dsn", name)
		}
	}
	return nil
}

// ClassifierOptions returns the classifier options of the configuration.
func (c *Config) ClassifierOptions(l logger.Interface) []risk.Option {
	return []risk.Option{
		risk.WithMaxParseLength(c.MaxParseLength),
		risk.WithStrictFallback(c.StrictFallback),
		risk.WithCacheSize(c.CacheSize),
		risk.WithLogger(l),
	}
}

// Classifier returns a classifier for the configured engine.
func (c *Config) Classifier(l logger.Interface) *risk.Classifier {
	return risk.New(c.Engine, c.ClassifierOptions(l)...)
}

// DatabaseClassifiers returns one classifier per database binding, keyed by
// the resolved database name and speaking the dialect of its driver.
func (c *Config) DatabaseClassifiers(l logger.Interface) map[string]*risk.Classifier {
	result := make(map[string]*risk.Classifier)
	for key, binding := range c.Bindings {
		if !binding.IsDatabase() {
			continue
		}
		engine, err := dbms.EngineForDriver(binding.Driver)
		if err != nil {
			continue
		}
		result[dbms.BindingName(key)] = risk.New(engine, c.ClassifierOptions(l)...)
	}
	return result
}
