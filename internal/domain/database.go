package domain

import (
	"errors"
	"fmt"
)

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// ErrUnsupportedDriver is returned for a driver outside the known set.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Valid reports whether d is one of the supported drivers.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// IsSQL reports whether the driver speaks SQL.
func (d DatabaseDriver) IsSQL() bool {
	return d.Valid() && d != DatabaseDriverMongoDB
}

// DatabaseConnection holds everything needed to reach an external database.
// Connections are declared in the configuration file and referenced by name.
type DatabaseConnection struct {
	Name     string         `yaml:"name" json:"name"`
	Driver   DatabaseDriver `yaml:"driver" json:"driver"`
	Host     string         `yaml:"host" json:"host"`         // hostname, URI (mongodb) or file path (sqlite)
	Port     int            `yaml:"port" json:"port"`         // 0 uses the driver default
	Database string         `yaml:"database" json:"database"` // empty for sqlite
	Username string         `yaml:"username" json:"username"`
	Password string         `yaml:"password" json:"-"`
	SSLMode  string         `yaml:"ssl_mode" json:"sslMode"`
	// Options are appended to the connection URI (mongodb only).
	Options map[string]string `yaml:"options" json:"options,omitempty"`
}

// Validate checks that the connection can be handed to a connector.
func (c *DatabaseConnection) Validate() error {
	if c.Name == "" {
		return errors.New("connection name is required")
	}
	if !c.Driver.Valid() {
		return fmt.Errorf("connection %q: %w: %q", c.Name, ErrUnsupportedDriver, c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("connection %q: host is required", c.Name)
	}
	return nil
}
