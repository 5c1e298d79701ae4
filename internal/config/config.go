package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Provider ProviderConfig `yaml:"provider"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Storage  StorageConfig  `yaml:"storage"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig contains ops-server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// APIConfig contains ops API configuration.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig contains API-key authentication configuration.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// ProviderConfig describes the upstream platform integration.
type ProviderConfig struct {
	Name         string `yaml:"name"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	GraphQLURL   string `yaml:"graphql_url"`
	APIVersion   string `yaml:"api_version"`
	RedirectURL  string `yaml:"redirect_url"`
}

// TokensConfig controls the token manager.
type TokensConfig struct {
	RefreshBuffer  time.Duration `yaml:"refresh_buffer"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// FetchConfig controls the paginated fetch engine.
type FetchConfig struct {
	PageSize    int           `yaml:"page_size"`
	MinPageSize int           `yaml:"min_page_size"`
	PageCeiling int           `yaml:"page_ceiling"`
	RecordCap   int           `yaml:"record_cap"`
	TargetCost  float64       `yaml:"target_cost"`
	MaxRetries  int           `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// StorageConfig contains credential store configuration.
type StorageConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"`
}

// AlertsConfig contains operator alerting configuration.
type AlertsConfig struct {
	Enabled       bool           `yaml:"enabled"`
	DedupWindow   time.Duration  `yaml:"dedup_window"`
	RatePerMinute int            `yaml:"rate_per_minute"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

// TelegramConfig contains the Telegram notifier configuration.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Default returns a configuration with sane defaults applied.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			HTTPPort:        8080,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		API: APIConfig{
			Enabled: true,
			Auth:    AuthConfig{HeaderName: "X-API-Key"},
		},
		Provider: ProviderConfig{
			Name:       "fieldserve",
			APIVersion: "2024-06",
		},
		Tokens: TokensConfig{
			RefreshBuffer:  90 * time.Second,
			RequestTimeout: 20 * time.Second,
		},
		Fetch: FetchConfig{
			PageSize:    50,
			MinPageSize: 5,
			PageCeiling: 20,
			RecordCap:   100,
			TargetCost:  6000,
			MaxRetries:  3,
			BaseBackoff: time.Second,
		},
		Storage: StorageConfig{
			Path: "./data/tradewatch.db",
		},
		Alerts: AlertsConfig{
			DedupWindow:   30 * time.Minute,
			RatePerMinute: 30,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Tokens.RefreshBuffer < 0 {
		return fmt.Errorf("tokens.refresh_buffer cannot be negative")
	}
	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch.page_size must be positive")
	}
	if c.Fetch.MinPageSize <= 0 || c.Fetch.MinPageSize > c.Fetch.PageSize {
		return fmt.Errorf("fetch.min_page_size must be in [1, page_size]")
	}
	if c.Fetch.PageCeiling <= 0 {
		return fmt.Errorf("fetch.page_ceiling must be positive")
	}
	if c.Fetch.RecordCap <= 0 {
		return fmt.Errorf("fetch.record_cap must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries cannot be negative")
	}
	if c.Provider.GraphQLURL == "" {
		return fmt.Errorf("provider.graphql_url is required")
	}
	if c.Provider.TokenURL == "" {
		return fmt.Errorf("provider.token_url is required")
	}
	if c.Alerts.Enabled && c.Alerts.Telegram.Token != "" && c.Alerts.Telegram.ChatID == 0 {
		return fmt.Errorf("alerts.telegram.chat_id is required when a telegram token is set")
	}
	return nil
}
