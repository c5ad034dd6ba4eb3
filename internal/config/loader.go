package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	configDir  = ".minaconn"
	configFile = "config"
	configType = "yaml"
	envPrefix  = "MINACONN"

	// KeyringService is the service name passwords are stored under.
	KeyringService = "minaconn"
)

// Load reads the configuration from path, or from ~/.minaconn/config.yaml
// when path is empty. Returns a default config if the file does not exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := configDirPath()
		if err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
		v.SetConfigName(configFile)
		v.AddConfigPath(dir)
	}

	// Defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path, or to ~/.minaconn/config.yaml when
// path is empty. Passwords of keyring-backed profiles are moved to the OS
// keyring and left out of the file.
func Save(cfg *Config, path string) error {
	if path == "" {
		dir, err := configDirPath()
		if err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
		path = filepath.Join(dir, configFile+"."+configType)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	conns := make([]Connection, len(cfg.Connections))
	for i, c := range cfg.Connections {
		if c.Keyring && c.Password != "" {
			if err := keyring.Set(KeyringService, c.Name, c.Password); err != nil {
				return fmt.Errorf("store password for %s: %w", c.Name, err)
			}
			c.Password = ""
		}
		conns[i] = c
	}

	v := viper.New()
	v.Set("connections", conns)
	v.Set("preferences", cfg.Preferences)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)

	return v.WriteConfigAs(path)
}

// ResolvePassword returns the password for a profile, reading it from the
// OS keyring when the profile is keyring-backed and has none inline.
func ResolvePassword(c Connection) (string, error) {
	if !c.Keyring || c.Password != "" {
		return c.Password, nil
	}
	pw, err := keyring.Get(KeyringService, c.Name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read password for %s: %w", c.Name, err)
	}
	return pw, nil
}

// DefaultConnection returns the default connection from config, or the first one.
func DefaultConnection(cfg *Config) *Connection {
	if len(cfg.Connections) == 0 {
		return nil
	}

	if cfg.Preferences.DefaultConnection != "" {
		if c, ok := cfg.Find(cfg.Preferences.DefaultConnection); ok {
			return c
		}
	}

	return &cfg.Connections[0]
}

func configDirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir), nil
}
