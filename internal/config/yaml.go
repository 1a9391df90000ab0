package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig is the top-level Syncer configuration file: a set of database
// registrations to load at startup plus logging defaults.
type YAMLConfig struct {
	Databases []DatabaseYAML `yaml:"databases"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// DatabaseYAML defines one database registration in the YAML configuration
// file.
type DatabaseYAML struct {
	Name           string          `yaml:"name"`
	Driver         string          `yaml:"driver"`
	DSN            string          `yaml:"dsn"`
	PrivateKeyPath string          `yaml:"private_key_path,omitempty"`
	Schema         string          `yaml:"schema"`
	SyncInterval   string          `yaml:"sync_interval"`
	Pool           *PoolYAMLConfig `yaml:"pool,omitempty"`
}

// PoolYAMLConfig controls the connection pool for a database in YAML config.
type PoolYAMLConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file (typically inside a dsn)
// are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults
// and no registered databases.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToRegistration converts one DatabaseYAML entry into a Registration ready
// for Store.CreateRegistration, applying defaults for any field left blank.
func (d DatabaseYAML) ToRegistration() (Registration, error) {
	reg := Registration{
		Name:           d.Name,
		Driver:         d.Driver,
		DSN:            d.DSN,
		PrivateKeyPath: d.PrivateKeyPath,
		Schema:         d.Schema,
		IsActive:       true,
		SyncInterval:   DefaultSyncInterval,
		Pool:           DefaultPoolConfig(),
	}

	if d.SyncInterval != "" {
		interval, err := time.ParseDuration(d.SyncInterval)
		if err != nil {
			return Registration{}, fmt.Errorf("database %q: parse sync_interval: %w", d.Name, err)
		}
		reg.SyncInterval = interval
	}

	if d.Pool != nil {
		if d.Pool.MaxOpenConns > 0 {
			reg.Pool.MaxOpenConns = d.Pool.MaxOpenConns
		}
		if d.Pool.MaxIdleConns > 0 {
			reg.Pool.MaxIdleConns = d.Pool.MaxIdleConns
		}
		if d.Pool.ConnMaxLifetime != "" {
			v, err := time.ParseDuration(d.Pool.ConnMaxLifetime)
			if err != nil {
				return Registration{}, fmt.Errorf("database %q: parse pool.conn_max_lifetime: %w", d.Name, err)
			}
			reg.Pool.ConnMaxLifetime = v
		}
		if d.Pool.ConnMaxIdleTime != "" {
			v, err := time.ParseDuration(d.Pool.ConnMaxIdleTime)
			if err != nil {
				return Registration{}, fmt.Errorf("database %q: parse pool.conn_max_idle_time: %w", d.Name, err)
			}
			reg.Pool.ConnMaxIdleTime = v
		}
	}

	return reg, nil
}
