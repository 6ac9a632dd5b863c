// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	OTP           OTPConfig
	Mail          MailConfig
	SMS           SMSConfig
	Auth          AuthConfig
	Events        EventsConfig
	Maintenance   MaintenanceConfig
	Subscription  SubscriptionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite string
	Lifetime       time.Duration
	IdleTimeout    time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	MetricsEnabled bool
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32
	Argon2Iterations   uint32
	Argon2Parallelism  uint8
	Argon2SaltLength   uint32
	Argon2KeyLength    uint32
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
}

// RateLimitConfig holds rate limiting configuration.
// The global limiter is per client IP; the OTP limiter is per (tenant, purpose) slot.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	OTPRequests       int64
	OTPPeriod         time.Duration
	RedisURL          string
}

// OTPConfig holds one-time code settings
type OTPConfig struct {
	TTL              time.Duration
	MaxResends       int
	LoginRequiresOTP bool
}

// MailConfig selects and configures the email transport
type MailConfig struct {
	Provider       string // sendgrid, log
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	ProductName    string
}

// SMSConfig selects the SMS transport. An empty provider means log-only delivery.
type SMSConfig struct {
	Provider   string // "", gateway
	GatewayURL string
	APIToken   string
	SenderID   string
	Timeout    time.Duration
}

// AuthConfig holds settings for account verification links
type AuthConfig struct {
	VerificationSecret string
	VerificationTTL    time.Duration
	PublicBaseURL      string
	BootstrapEmail     string
	BootstrapPassword  string
	BootstrapName      string
}

// EventsConfig holds the lifecycle event bus configuration
type EventsConfig struct {
	NATSURL string
	Stream  string
}

// MaintenanceConfig holds the background sweep schedule
type MaintenanceConfig struct {
	Enabled  bool
	Schedule string
}

// SubscriptionConfig holds subscription defaults
type SubscriptionConfig struct {
	DefaultTrialDays int
}

// Load loads configuration from environment variables, reading an optional .env file first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "atelier"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "atelier"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Session: SessionConfig{
			CookieName:     getEnv("SESSION_COOKIE_NAME", "atelier_session"),
			CookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookiePath:     getEnv("SESSION_COOKIE_PATH", "/"),
			CookieSecure:   parseBool("SESSION_COOKIE_SECURE", false),
			CookieHTTPOnly: parseBool("SESSION_COOKIE_HTTP_ONLY", true),
			CookieSameSite: getEnv("SESSION_COOKIE_SAME_SITE", "Lax"),
			Lifetime:       parseDuration("SESSION_LIFETIME", "24h"),
			IdleTimeout:    parseDuration("SESSION_IDLE_TIMEOUT", "30m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "atelier"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			MetricsEnabled: parseBool("METRICS_ENABLED", true),
		},
		Security: SecurityConfig{
			Argon2Memory:       uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:   uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:  uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:   uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:    uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
			LockoutMaxAttempts: parseInt("SECURITY_LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:    parseDuration("SECURITY_LOCKOUT_DURATION", "15m"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
			OTPRequests:       int64(parseInt("RATELIMIT_OTP_REQUESTS", 10)),
			OTPPeriod:         parseDuration("RATELIMIT_OTP_PERIOD", "10m"),
			RedisURL:          getEnv("REDIS_URL", ""),
		},
		OTP: OTPConfig{
			TTL:              parseDuration("OTP_TTL", "10m"),
			MaxResends:       parseInt("OTP_MAX_RESENDS", 3),
			LoginRequiresOTP: parseBool("AUTH_LOGIN_REQUIRES_OTP", false),
		},
		Mail: MailConfig{
			Provider:       getEnv("MAIL_PROVIDER", "log"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("MAIL_FROM_EMAIL", "no-reply@atelier.app"),
			FromName:       getEnv("MAIL_FROM_NAME", "Atelier"),
			ProductName:    getEnv("PRODUCT_NAME", "Atelier"),
		},
		SMS: SMSConfig{
			Provider:   getEnv("SMS_PROVIDER", ""),
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIToken:   getEnv("SMS_API_TOKEN", ""),
			SenderID:   getEnv("SMS_SENDER_ID", "ATELIR"),
			Timeout:    parseDuration("SMS_TIMEOUT", "10s"),
		},
		Auth: AuthConfig{
			VerificationSecret: getEnv("AUTH_VERIFICATION_SECRET", ""),
			VerificationTTL:    parseDuration("AUTH_VERIFICATION_TTL", "24h"),
			PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			BootstrapEmail:     getEnv("ATELIER_BOOTSTRAP_ADMIN_EMAIL", ""),
			BootstrapPassword:  getEnv("ATELIER_BOOTSTRAP_ADMIN_PASSWORD", ""),
			BootstrapName:      getEnv("ATELIER_BOOTSTRAP_ADMIN_NAME", "Platform Admin"),
		},
		Events: EventsConfig{
			NATSURL: getEnv("NATS_URL", ""),
			Stream:  getEnv("NATS_STREAM", "TENANT_EVENTS"),
		},
		Maintenance: MaintenanceConfig{
			Enabled:  parseBool("MAINTENANCE_ENABLED", true),
			Schedule: getEnv("MAINTENANCE_SCHEDULE", "*/15 * * * *"),
		},
		Subscription: SubscriptionConfig{
			DefaultTrialDays: parseInt("SUBSCRIPTION_DEFAULT_TRIAL_DAYS", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.VerificationSecret == "" {
		return fmt.Errorf("AUTH_VERIFICATION_SECRET is required")
	}
	if c.OTP.MaxResends < 0 {
		return fmt.Errorf("OTP_MAX_RESENDS must not be negative")
	}
	switch c.SMS.Provider {
	case "":
	case "gateway":
		if c.SMS.GatewayURL == "" {
			return fmt.Errorf("SMS_GATEWAY_URL is required when SMS_PROVIDER=gateway")
		}
	default:
		return fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider)
	}
	if c.Mail.Provider == "sendgrid" && c.Mail.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_PROVIDER=sendgrid")
	}
	return nil
}

// DSN returns the pgx connection string for the database section
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d pool_max_conn_lifetime=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
		d.MaxOpenConns, d.MaxIdleConns, d.ConnMaxLifetime,
	)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
