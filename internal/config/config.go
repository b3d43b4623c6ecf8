package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	BRy       BRyConfig       `yaml:"bry"`
	Email     EmailConfig     `yaml:"email"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Admin     AdminConfig     `yaml:"admin"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// BRyConfig contains the certificate authority (BRy AR) integration settings
type BRyConfig struct {
	Environment     string `yaml:"environment"` // production or homologation
	APIBaseURL      string `yaml:"api_base_url"`
	APIToken        string `yaml:"api_token"`
	EmissionBaseURL string `yaml:"emission_base_url"`
	Timeout         string `yaml:"timeout"`
}

// EmailConfig contains outbound email configuration
type EmailConfig struct {
	Provider   string `yaml:"provider"` // resend or log
	APIKey     string `yaml:"api_key"`
	APIBaseURL string `yaml:"api_base_url"`
	From       string `yaml:"from"`
}

// WebhookConfig contains inbound webhook configuration
type WebhookConfig struct {
	TokenHash string `yaml:"token_hash"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token      string `yaml:"token"`
	TOTPSecret string `yaml:"totp_secret"`
}

// ReconcileConfig controls the server-side status poller
type ReconcileConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interval  string `yaml:"interval"`
	BatchSize int    `yaml:"batch_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.ShutdownTimeout != "" {
		if _, err := ParseDuration(c.Server.ShutdownTimeout); err != nil {
			return fmt.Errorf("server.shutdown_timeout is invalid: %w", err)
		}
	}

	// Database validation
	switch c.Database.Driver {
	case "", "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres'")
	}

	// BRy validation
	if c.BRy.Environment != "production" && c.BRy.Environment != "homologation" {
		return fmt.Errorf("bry.environment must be 'production' or 'homologation'")
	}
	if c.BRy.Timeout != "" {
		if _, err := ParseDuration(c.BRy.Timeout); err != nil {
			return fmt.Errorf("bry.timeout is invalid: %w", err)
		}
	}

	// Email validation
	switch c.Email.Provider {
	case "resend":
		if c.Email.APIKey == "" {
			return fmt.Errorf("email.api_key is required for resend")
		}
	case "log":
	default:
		return fmt.Errorf("email.provider must be 'resend' or 'log'")
	}
	if !strings.Contains(c.Email.From, "@") {
		return fmt.Errorf("email.from must be an email address")
	}

	// Admin validation
	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if c.Admin.Token == "change-me" {
		fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
	}

	// Reconcile validation
	if c.Reconcile.Enabled {
		d, err := ParseDuration(c.Reconcile.Interval)
		if err != nil {
			return fmt.Errorf("reconcile.interval is invalid: %w", err)
		}
		if d < time.Second {
			return fmt.Errorf("reconcile.interval must be at least 1s")
		}
		if c.BRy.APIBaseURL == "" {
			return fmt.Errorf("bry.api_base_url is required when reconcile is enabled")
		}
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// DatabaseDriver returns the configured driver, defaulting to sqlite
func (c *Config) DatabaseDriver() string {
	if c.Database.Driver == "" {
		return "sqlite"
	}
	return c.Database.Driver
}

// GetBRyTimeout returns the BRy API timeout, 15s when unset
func (c *Config) GetBRyTimeout() time.Duration {
	if d, err := ParseDuration(c.BRy.Timeout); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}

// GetShutdownTimeout returns the graceful shutdown timeout, 10s when unset
func (c *Config) GetShutdownTimeout() time.Duration {
	if d, err := ParseDuration(c.Server.ShutdownTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// GetReconcileInterval returns the reconcile interval as time.Duration
func (c *Config) GetReconcileInterval() time.Duration {
	d, _ := ParseDuration(c.Reconcile.Interval)
	return d
}

// GetReconcileBatchSize returns how many in-flight requests one reconcile pass loads
func (c *Config) GetReconcileBatchSize() int {
	if c.Reconcile.BatchSize <= 0 {
		return 200
	}
	return c.Reconcile.BatchSize
}

// ParseDuration parses a duration with support for days (e.g., "90d")
func ParseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
