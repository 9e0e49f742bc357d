// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Owner    OwnerConfig    `yaml:"owner"`
	Auth     AuthConfig     `yaml:"auth"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Billing  BillingConfig  `yaml:"billing"`
	Plans    []PlanConfig   `yaml:"plans"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// OwnerConfig identifies the service owner.
// The owner bypasses quota and model restrictions entirely. The email
// is compared case-sensitively against the authenticated user's email.
type OwnerConfig struct {
	Email string `yaml:"email"`
}

// AuthConfig configures session token issuance.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// OpenAIConfig configures the chat-completion upstream.
// When AccountID and GatewayID are set, requests are routed through the
// Cloudflare AI Gateway for caching and analytics.
type OpenAIConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	AccountID string        `yaml:"cloudflare_account_id,omitempty"`
	GatewayID string        `yaml:"cloudflare_gateway_id,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// BillingConfig configures the payment provider.
// Use "none", "lemonsqueezy", or "stripe".
type BillingConfig struct {
	Provider     string             `yaml:"provider"`
	SuccessURL   string             `yaml:"success_url,omitempty"`
	CancelURL    string             `yaml:"cancel_url,omitempty"`
	LemonSqueezy LemonSqueezyConfig `yaml:"lemonsqueezy,omitempty"`
	Stripe       StripeConfig       `yaml:"stripe,omitempty"`
}

// LemonSqueezyConfig holds LemonSqueezy credentials.
type LemonSqueezyConfig struct {
	APIKey        string `yaml:"api_key,omitempty"`
	StoreID       string `yaml:"store_id,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// PlanConfig configures a subscription plan.
type PlanConfig struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	MessagesPerMonth int64    `yaml:"messages_per_month"` // -1 = unlimited
	PriceMonthly     int64    `yaml:"price_monthly"`      // cents
	AllowedModels    []string `yaml:"allowed_models"`
	LemonVariantID   string   `yaml:"lemon_variant_id,omitempty"`
	StripePriceID    string   `yaml:"stripe_price_id,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	CHATGATE_OPENAI_API_KEY   - OpenAI API key (required)
//	CHATGATE_OWNER_EMAIL      - Owner email for the quota bypass
//	CHATGATE_DATABASE_DSN     - Database path (default: chatgate.db)
//	CHATGATE_SERVER_HOST      - Server host (default: 0.0.0.0)
//	CHATGATE_SERVER_PORT      - Server port (default: 8080)
//	CHATGATE_AUTH_JWT_SECRET  - Secret for session token signing
//	CHATGATE_BILLING_PROVIDER - Payment provider: none, lemonsqueezy, stripe
//	CHATGATE_LOG_LEVEL        - Log level: debug, info, warn, error
//	CHATGATE_LOG_FORMAT       - Log format: json or console
//	CHATGATE_METRICS_ENABLED  - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set CHATGATE_OPENAI_API_KEY")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("CHATGATE_OPENAI_API_KEY") != ""
}

// applyEnvOverrides applies CHATGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("CHATGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CHATGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CHATGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("CHATGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("CHATGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CHATGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Owner configuration
	if v := os.Getenv("CHATGATE_OWNER_EMAIL"); v != "" {
		cfg.Owner.Email = v
	}

	// Auth configuration
	if v := os.Getenv("CHATGATE_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CHATGATE_AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}

	// OpenAI configuration
	if v := os.Getenv("CHATGATE_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("CHATGATE_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("CHATGATE_CLOUDFLARE_ACCOUNT_ID"); v != "" {
		cfg.OpenAI.AccountID = v
	}
	if v := os.Getenv("CHATGATE_CLOUDFLARE_GATEWAY_ID"); v != "" {
		cfg.OpenAI.GatewayID = v
	}
	if v := os.Getenv("CHATGATE_OPENAI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OpenAI.Timeout = d
		}
	}

	// Billing configuration
	if v := os.Getenv("CHATGATE_BILLING_PROVIDER"); v != "" {
		cfg.Billing.Provider = v
	}
	if v := os.Getenv("CHATGATE_LEMON_API_KEY"); v != "" {
		cfg.Billing.LemonSqueezy.APIKey = v
	}
	if v := os.Getenv("CHATGATE_LEMON_STORE_ID"); v != "" {
		cfg.Billing.LemonSqueezy.StoreID = v
	}
	if v := os.Getenv("CHATGATE_LEMON_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.LemonSqueezy.WebhookSecret = v
	}
	if v := os.Getenv("CHATGATE_STRIPE_SECRET_KEY"); v != "" {
		cfg.Billing.Stripe.SecretKey = v
	}
	if v := os.Getenv("CHATGATE_STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.Stripe.WebhookSecret = v
	}

	// Logging configuration
	if v := os.Getenv("CHATGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHATGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("CHATGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CHATGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 90 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "chatgate.db"
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60 * time.Second
	}

	if cfg.Billing.Provider == "" {
		cfg.Billing.Provider = "none"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Default plan table if none configured
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() []PlanConfig {
	allModels := []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}
	return []PlanConfig{
		{
			ID:               "FREE",
			Name:             "Free",
			MessagesPerMonth: 20,
			PriceMonthly:     0,
			AllowedModels:    []string{"gpt-3.5-turbo"},
		},
		{
			ID:               "PRO",
			Name:             "Pro",
			MessagesPerMonth: -1,
			PriceMonthly:     1900,
			AllowedModels:    allModels,
		},
		{
			ID:               "API",
			Name:             "API / Developer",
			MessagesPerMonth: -1,
			PriceMonthly:     2900,
			AllowedModels:    allModels,
		},
		{
			ID:               "TEAM",
			Name:             "Team / Studio",
			MessagesPerMonth: -1,
			PriceMonthly:     4900,
			AllowedModels:    allModels,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validProviders := map[string]bool{"none": true, "lemonsqueezy": true, "stripe": true}
	if !validProviders[cfg.Billing.Provider] {
		return fmt.Errorf("billing.provider must be one of: none, lemonsqueezy, stripe")
	}
	if cfg.Billing.Provider == "lemonsqueezy" {
		if cfg.Billing.LemonSqueezy.APIKey == "" || cfg.Billing.LemonSqueezy.StoreID == "" {
			return fmt.Errorf("billing.lemonsqueezy.api_key and store_id are required")
		}
	}
	if cfg.Billing.Provider == "stripe" && cfg.Billing.Stripe.SecretKey == "" {
		return fmt.Errorf("billing.stripe.secret_key is required")
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("plans[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
		if p.MessagesPerMonth < -1 {
			return fmt.Errorf("plans[%d].messages_per_month must be >= -1", i)
		}
	}

	return nil
}
