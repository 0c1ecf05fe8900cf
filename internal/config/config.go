// Package config loads the datapipe configuration file: the catalog
// location, logging, the database connections and the declared pipelines.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"datapipe/internal/domain"
	"datapipe/internal/etl"
	"datapipe/internal/metadata"
	"datapipe/internal/secret"
)

// Defaults applied by Parse.
const (
	DefaultCatalog  = "datapipe.db"
	DefaultLogLevel = "info"
	DefaultListen   = ":9464"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Config is the root of the configuration file.
type Config struct {
	// Catalog is the SQLite file holding pipelines and run logs.
	Catalog  string `yaml:"catalog"`
	LogLevel string `yaml:"log_level"`
	// Listen is the address `serve` exposes metrics on.
	Listen string `yaml:"listen"`

	Connections []domain.DatabaseConnection `yaml:"connections"`
	Pipelines   []etl.Pipeline              `yaml:"pipelines"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. ${VAR} references are expanded
// from the environment first, then defaults are applied, connection
// passwords are resolved and the result is validated.
func Parse(data []byte) (*Config, error) {
	return parse(data, secret.NewResolver())
}

func parse(data []byte, secrets *secret.Resolver) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	for i := range cfg.Connections {
		c := &cfg.Connections[i]
		password, err := secrets.Resolve(c.Password)
		if err != nil {
			return nil, fmt.Errorf("connection %q: password: %w", c.Name, err)
		}
		c.Password = password
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Catalog == "" {
		c.Catalog = DefaultCatalog
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
}

// Validate checks connections and pipelines and the references between
// them. Pipeline defaults (sync mode, trigger) are filled in.
func (c *Config) Validate() error {
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("%w: unknown log_level %q", metadata.ErrInvalidArgument, c.LogLevel)
	}

	connections := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		conn := &c.Connections[i]
		if err := conn.Validate(); err != nil {
			return err
		}
		if connections[conn.Name] {
			return fmt.Errorf("%w: connection %q is declared twice", metadata.ErrInvalidArgument, conn.Name)
		}
		connections[conn.Name] = true
	}

	pipelines := make(map[string]bool, len(c.Pipelines))
	for i := range c.Pipelines {
		p := &c.Pipelines[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if pipelines[p.Name] {
			return fmt.Errorf("%w: pipeline %q is declared twice", metadata.ErrInvalidArgument, p.Name)
		}
		pipelines[p.Name] = true

		if p.Target.Connection == "" || p.Target.Table == "" {
			return fmt.Errorf("%w: pipeline %s: target connection and table are required", metadata.ErrInvalidArgument, p.Name)
		}
		if !connections[p.Target.Connection] {
			return fmt.Errorf("%w: pipeline %s: unknown target connection %q", metadata.ErrInvalidArgument, p.Name, p.Target.Connection)
		}
		if ref := p.SourceCfg.String("connection"); p.SourceType == "database" && !connections[ref] {
			return fmt.Errorf("%w: pipeline %s: unknown source connection %q", metadata.ErrInvalidArgument, p.Name, ref)
		}
	}
	return nil
}

// Connection returns the connection named name.
func (c *Config) Connection(name string) (domain.DatabaseConnection, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return domain.DatabaseConnection{}, false
}
