package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	overrides := []struct {
		env string
		dst *string
	}{
		{"CERTSYNC_LISTEN_ADDR", &cfg.Server.ListenAddr},
		{"CERTSYNC_DB_DRIVER", &cfg.Database.Driver},
		{"CERTSYNC_DB_PATH", &cfg.Database.Path},
		{"CERTSYNC_DATABASE_URL", &cfg.Database.URL},
		{"CERTSYNC_BRY_ENVIRONMENT", &cfg.BRy.Environment},
		{"CERTSYNC_BRY_API_TOKEN", &cfg.BRy.APIToken},
		{"CERTSYNC_EMAIL_API_KEY", &cfg.Email.APIKey},
		{"CERTSYNC_EMAIL_FROM", &cfg.Email.From},
		{"CERTSYNC_WEBHOOK_TOKEN_HASH", &cfg.Webhook.TokenHash},
		{"CERTSYNC_ADMIN_TOKEN", &cfg.Admin.Token},
		{"CERTSYNC_ADMIN_TOTP_SECRET", &cfg.Admin.TOTPSecret},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
