package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joacominatel/minaconn/internal/uri"
)

// Config represents the application configuration.
type Config struct {
	Connections []Connection `mapstructure:"connections" yaml:"connections"`
	Preferences Preferences  `mapstructure:"preferences" yaml:"preferences"`
	Logging     Logging      `mapstructure:"logging" yaml:"logging"`
	Metrics     Metrics      `mapstructure:"metrics" yaml:"metrics"`
}

// Connection represents a saved database connection profile.
type Connection struct {
	Name     string         `mapstructure:"name" yaml:"name"`
	Host     string         `mapstructure:"host" yaml:"host"`
	Port     int            `mapstructure:"port" yaml:"port"`
	Hosts    []string       `mapstructure:"hosts" yaml:"hosts,omitempty"`
	Database string         `mapstructure:"database" yaml:"database"`
	Username string         `mapstructure:"username" yaml:"username"`
	Password string         `mapstructure:"password" yaml:"password,omitempty"`
	Keyring  bool           `mapstructure:"keyring" yaml:"keyring,omitempty"`
	SSLMode  string         `mapstructure:"sslmode" yaml:"sslmode"`
	Options  map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// Preferences holds user preferences.
type Preferences struct {
	DefaultConnection string `mapstructure:"default_connection" yaml:"default_connection"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Metrics toggles lifecycle metrics collection.
type Metrics struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Descriptor builds the structured URI for the profile.
func (c Connection) Descriptor() (uri.Descriptor, error) {
	d := uri.Descriptor{
		Username: c.Username,
		Password: c.Password,
		Database: c.Database,
	}

	if len(c.Hosts) > 0 {
		for _, h := range c.Hosts {
			host, err := uri.ParseHost(strings.TrimSpace(h))
			if err != nil {
				return uri.Descriptor{}, err
			}
			d.Hosts = append(d.Hosts, host)
		}
	} else {
		d.Hosts = []uri.Host{{Host: c.Host, Port: c.Port}}
	}

	if c.SSLMode != "" {
		d.Options = url.Values{"sslmode": {c.SSLMode}}
	}
	return d, nil
}

// DSN builds a PostgreSQL connection string from the connection profile.
func (c Connection) DSN() (string, error) {
	d, err := c.Descriptor()
	if err != nil {
		return "", err
	}
	return uri.Format(d), nil
}

// DisplayString returns a human-readable summary of the connection.
func (c Connection) DisplayString() string {
	s := c.Host
	if c.Port > 0 {
		s += ":" + strconv.Itoa(c.Port)
	}
	if len(c.Hosts) > 0 {
		s = strings.Join(c.Hosts, ",")
	}
	s += "/" + c.Database
	if c.Username != "" {
		s = c.Username + "@" + s
	}
	return s
}

// ParseDSN parses a PostgreSQL connection string into a Connection.
func ParseDSN(dsn string) (Connection, error) {
	d, err := uri.Parse(dsn)
	if err != nil {
		return Connection{}, fmt.Errorf("invalid DSN: %w", err)
	}

	conn := Connection{
		Host:     d.Hosts[0].Host,
		Port:     d.Hosts[0].Port,
		Database: d.Database,
		Username: d.Username,
		Password: d.Password,
		SSLMode:  d.Options.Get("sslmode"),
	}
	if len(d.Hosts) > 1 {
		for _, h := range d.Hosts {
			conn.Hosts = append(conn.Hosts, h.String())
		}
	}

	// Auto-generate a name
	conn.Name = fmt.Sprintf("postgres-%s-%d-%s", conn.Host, conn.Port, conn.Database)

	return conn, nil
}

// HasConnection checks if a connection with the given name already exists.
func (cfg *Config) HasConnection(name string) bool {
	_, ok := cfg.Find(name)
	return ok
}

// Find returns the connection profile with the given name.
func (cfg *Config) Find(name string) (*Connection, bool) {
	for i := range cfg.Connections {
		if cfg.Connections[i].Name == name {
			return &cfg.Connections[i], true
		}
	}
	return nil, false
}

// AddConnection appends a connection if it doesn't already exist.
func (cfg *Config) AddConnection(conn Connection) {
	if !cfg.HasConnection(conn.Name) {
		cfg.Connections = append(cfg.Connections, conn)
	}
}
