package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`

	AdminEmail    string `env:"ADMIN_EMAIL,required" validate:"required,email"`
	AdminPassword string `env:"ADMIN_PASSWORD,required" validate:"required,min=12"`

	AgentTokenSecret string `env:"AGENT_TOKEN_SECRET,required" validate:"required,min=32"`
	EncryptionKey    string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" validate:"required_with=StripeSecretKey"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"resend" validate:"omitempty,oneof=resend mailgun postmark"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"reports@labdesk.app" validate:"omitempty,email"`
	EmailDomain   string `env:"EMAIL_DOMAIN" validate:"required_if=EmailProvider mailgun"`

	SupportContact string `env:"SUPPORT_CONTACT" envDefault:"care@labdesk.app"`

	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	ReportsBucket      string `env:"REPORTS_BUCKET" envDefault:"labdesk-reports"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// PaymentsEnabled reports whether online checkout is configured. Without
// Stripe keys every order falls back to collect_on_visit.
func (c *Config) PaymentsEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != "" && strings.TrimSpace(c.StripeWebhookSecret) != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
