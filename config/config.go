package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// JAILRUN_BACKEND_BASE_URL.
const EnvPrefix = "JAILRUN"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Jail    JailConfig    `mapstructure:"jail"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// BackendConfig holds the location of the jail backend
type BackendConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	PreparePath string `mapstructure:"prepare_path"`
	RunPath     string `mapstructure:"run_path"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

// JailConfig holds the initial values of a session
type JailConfig struct {
	DefaultPath    string `mapstructure:"default_path"`
	DefaultCommand string `mapstructure:"default_command"`
	HistorySize    int    `mapstructure:"history_size"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode   string `mapstructure:"mode"`
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// New loads and validates the application configuration from config.yaml
// in the working directory or ./config.
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return unmarshal(v)
}

// Load reads the configuration from an explicit file path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("backend.base_url", "http://127.0.0.1:8000")
	v.SetDefault("backend.prepare_path", "/api/sandbox/prepare_jail")
	v.SetDefault("backend.run_path", "/api/sandbox/run")
	v.SetDefault("backend.timeout_sec", 30)

	v.SetDefault("jail.default_path", "sandbox_jail")
	v.SetDefault("jail.default_command", "./tests/infinite_loop")
	v.SetDefault("jail.history_size", 50)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stderr")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url: %q, must be an absolute http(s) URL", c.Backend.BaseURL)
	}

	if !strings.HasPrefix(c.Backend.PreparePath, "/") {
		return fmt.Errorf("backend.prepare_path must start with '/', got: %q", c.Backend.PreparePath)
	}

	if !strings.HasPrefix(c.Backend.RunPath, "/") {
		return fmt.Errorf("backend.run_path must start with '/', got: %q", c.Backend.RunPath)
	}

	if c.Backend.TimeoutSec <= 0 {
		return fmt.Errorf("backend.timeout_sec must be positive, got: %d", c.Backend.TimeoutSec)
	}

	if c.Jail.HistorySize <= 0 {
		return fmt.Errorf("jail.history_size must be positive, got: %d", c.Jail.HistorySize)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Logging.Output == "" {
		return errors.New("logging.output must not be empty")
	}

	if c.Server.Transport == "stdio" && c.Logging.Output == "stdout" {
		return errors.New("logging.output cannot be stdout with the stdio transport")
	}

	return nil
}

// GetTimeout returns the backend request timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}
