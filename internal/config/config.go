// Package config loads the optional scopegraph.yaml file at a repository root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the repository root.
const FileName = "scopegraph.yaml"

// Config holds file-level settings. Zero values mean "use the default".
type Config struct {
	// Languages restricts indexing to these registry ids or aliases.
	Languages []string `yaml:"languages,omitempty"`
	// Exclude holds gitignore-style patterns relative to the root.
	Exclude      []string      `yaml:"exclude,omitempty"`
	Workers      int           `yaml:"workers,omitempty"`
	MaxFileSize  int           `yaml:"max_file_size,omitempty"`
	ParseTimeout time.Duration `yaml:"parse_timeout,omitempty"`
	CacheDir     string        `yaml:"cache_dir,omitempty"`
}

// Load reads the config file from root. A missing file yields an empty
// Config and no error.
func Load(root string) (*Config, error) {
	return LoadFile(filepath.Join(root, FileName))
}

// LoadFile reads the config file at path. A missing file yields an empty
// Config and no error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects negative limits.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize))
	}
	if c.ParseTimeout < 0 {
		errs = append(errs, fmt.Errorf("parse_timeout must not be negative, got %s", c.ParseTimeout))
	}
	return errors.Join(errs...)
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Merge returns c with every non-zero field of override applied on top.
func (c Config) Merge(override Config) Config {
	if len(override.Languages) > 0 {
		c.Languages = override.Languages
	}
	c.Exclude = append(append([]string(nil), c.Exclude...), override.Exclude...)
	if override.Workers > 0 {
		c.Workers = override.Workers
	}
	if override.MaxFileSize > 0 {
		c.MaxFileSize = override.MaxFileSize
	}
	if override.ParseTimeout > 0 {
		c.ParseTimeout = override.ParseTimeout
	}
	if override.CacheDir != "" {
		c.CacheDir = override.CacheDir
	}
	return c
}
