// Package config loads and validates the server configuration from YAML
// files and REGD_* environment variables, with live reload of the logging
// level on file change.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/store"
)

// Config is the root configuration of the server.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	EPP      EPPConfig      `mapstructure:"epp" yaml:"epp"`
	Database store.Config   `mapstructure:"database" yaml:"database"`
	RDAP     RDAPConfig     `mapstructure:"rdap" yaml:"rdap"`
	WHOIS    WHOISConfig    `mapstructure:"whois" yaml:"whois"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// EPPConfig controls the EPP listener.
type EPPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	ServerID string `mapstructure:"server_id" yaml:"server_id" validate:"required"`

	TLSCert           string `mapstructure:"tls_cert" yaml:"tls_cert"`
	TLSKey            string `mapstructure:"tls_key" yaml:"tls_key"`
	TLSClientCA       string `mapstructure:"tls_client_ca" yaml:"tls_client_ca"`
	RequireClientCert bool   `mapstructure:"require_client_cert" yaml:"require_client_cert"`

	// InsecureNoTLS accepts plaintext connections. Lab use only.
	InsecureNoTLS bool `mapstructure:"insecure_no_tls" yaml:"insecure_no_tls"`

	// InsecureAuth accepts any passphrase for a known registrar. Lab use
	// only.
	InsecureAuth bool `mapstructure:"insecure_auth" yaml:"insecure_auth"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// Addr returns the listen address of the EPP server.
func (c *EPPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RDAPConfig controls the RDAP HTTP front end.
type RDAPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// Addr returns the listen address of the RDAP server.
func (c *RDAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WHOISConfig controls the WHOIS front end.
type WHOISConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// Addr returns the listen address of the WHOIS server.
func (c *WHOISConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// Addr returns the listen address of the metrics server.
func (c *MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TransferConfig controls the pending-transfer auto-approval sweeper.
type TransferConfig struct {
	AutoApproveAfter time.Duration `mapstructure:"auto_approve_after" yaml:"auto_approve_after"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.EPP.Port == 0 {
		c.EPP.Port = 700
	}
	if c.EPP.ServerID == "" {
		c.EPP.ServerID = "regd-1"
	}
	if c.EPP.HandshakeTimeout == 0 {
		c.EPP.HandshakeTimeout = 30 * time.Second
	}
	if c.EPP.IdleTimeout == 0 {
		c.EPP.IdleTimeout = 10 * time.Minute
	}

	if c.RDAP.Port == 0 {
		c.RDAP.Port = 8080
	}
	if c.WHOIS.Port == 0 {
		c.WHOIS.Port = 43
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}

	if c.Transfer.AutoApproveAfter == 0 {
		c.Transfer.AutoApproveAfter = 120 * time.Hour
	}
	if c.Transfer.SweepInterval == 0 {
		c.Transfer.SweepInterval = 10 * time.Minute
	}

	c.Database.ApplyDefaults()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.EPP.InsecureNoTLS {
		if c.EPP.TLSCert == "" || c.EPP.TLSKey == "" {
			return fmt.Errorf("epp.tls_cert and epp.tls_key are required unless epp.insecure_no_tls is set")
		}
	}
	if c.EPP.RequireClientCert && c.EPP.TLSClientCA == "" {
		return fmt.Errorf("epp.tls_client_ca is required when epp.require_client_cert is set")
	}
	return c.Database.Validate()
}

// Load reads configuration from the given file, or from the default
// search paths when path is empty, overlaying REGD_* environment
// variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("regd")
		v.AddConfigPath("/etc/regd")
		v.AddConfigPath("$HOME/.regd")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("REGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file on the search path: defaults plus environment.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	watchLoggingLevel(v)
	return cfg, nil
}

// watchLoggingLevel reloads the logging level when the config file
// changes. Other settings require a restart.
func watchLoggingLevel(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		lvl := v.GetString("logging.level")
		if lvl == "" {
			return
		}
		logger.SetLevel(lvl)
		logger.Info("Logging level reloaded", "level", lvl, "file", e.Name)
	})
	v.WatchConfig()
}
