package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/creastat/descriptorstore"
	"gopkg.in/yaml.v3"
)

// Config lists the schemas a process serves.
type Config struct {
	Schemas []SchemaConfig `yaml:"schemas"`
}

// SchemaConfig describes one schema, its connection and its fields.
type SchemaConfig struct {
	Name       string           `yaml:"name"`
	Connection ConnectionConfig `yaml:"connection"`
	Fields     []FieldConfig    `yaml:"fields"`
}

// ConnectionConfig names the provider and its parameters.
type ConnectionConfig struct {
	Database   string            `yaml:"database"`
	Parameters map[string]string `yaml:"parameters"`
}

// FieldConfig binds a field name to an analyser.
type FieldConfig struct {
	Name       string            `yaml:"name"`
	Factory    string            `yaml:"factory"`
	Parameters map[string]string `yaml:"parameters"`
}

// LoadConfig reads a YAML (or JSON) configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w: %w", descriptorstore.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names and references that do not need a registry.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, s := range c.Schemas {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate schema %q: %w", s.Name, descriptorstore.ErrInvalidConfig)
		}
		seen[s.Name] = true
	}
	return nil
}

// Validate checks the schema name, the provider and the field names.
func (s *SchemaConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema without name: %w", descriptorstore.ErrInvalidConfig)
	}
	if s.Connection.Database == "" {
		return fmt.Errorf("schema %q has no connection database: %w", s.Name, descriptorstore.ErrInvalidConfig)
	}
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if f.Name == "" || strings.Contains(f.Name, ".") {
			return fmt.Errorf("schema %q: invalid field name %q: %w", s.Name, f.Name, descriptorstore.ErrInvalidConfig)
		}
		if f.Factory == "" {
			return fmt.Errorf("schema %q: field %q has no factory: %w", s.Name, f.Name, descriptorstore.ErrInvalidConfig)
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("schema %q: duplicate field %q: %w", s.Name, f.Name, descriptorstore.ErrInvalidConfig)
		}
		seen[key] = true
	}
	return nil
}
