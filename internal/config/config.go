// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host    string
	Port    string
	Env     string // "development", "production", "testing"
	BaseURL string // public URL of the frontend, used in mail links

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible session store)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Access tokens
	JWTSecret    string
	JWTExpiresIn time.Duration

	CORSOrigins []string

	// Outgoing mail. An empty SMTPHost disables delivery.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	// TelemetryExporter selects where traces and metrics go: "stdout" or
	// "none". Development defaults to stdout.
	TelemetryExporter string

	// RateLimitAuth is the number of auth requests allowed per client per minute.
	RateLimitAuth int
	// RateLimitWrite is the number of content and engagement writes allowed
	// per account per minute.
	RateLimitWrite int

	// Seeded administrator (development only).
	AdminEmail    string
	AdminPassword string

	Policy Policy
}

// Policy groups the behavioural switches the platform leaves to operators.
type Policy struct {
	AllowInactiveLogin bool
	AllowSelfFollow    bool
	AllowSaveOwn       bool
}

const (
	defaultDBPassword = "changeme"
	defaultJWTSecret  = "dev-secret-change-me"
)

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. A .env file in the working directory
// is loaded first when present; real environment variables win over it.
// Returns an error if critical values are missing in production mode.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Host:    envOrDefault("APP_HOST", "0.0.0.0"),
		Port:    envOrDefault("APP_PORT", "8080"),
		Env:     envOrDefault("APP_ENV", "development"),
		BaseURL: strings.TrimRight(envOrDefault("APP_BASE_URL", "http://localhost:3000"), "/"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "ajeyam"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", defaultDBPassword),
		DBName:     envOrDefault("POSTGRES_DB", "ajeyam"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		JWTSecret: envOrDefault("JWT_SECRET", defaultJWTSecret),

		CORSOrigins: splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3000")),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     envOrDefault("MAIL_FROM", "Ajeyam <no-reply@ajeyam.local>"),

		AdminEmail:    envOrDefault("ADMIN_EMAIL", "admin@ajeyam.local"),
		AdminPassword: envOrDefault("ADMIN_PASSWORD", "admin12345"),
	}

	var err error
	if cfg.JWTExpiresIn, err = time.ParseDuration(envOrDefault("JWT_EXPIRES_IN", "2160h")); err != nil {
		return nil, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if cfg.SMTPPort, err = strconv.Atoi(envOrDefault("SMTP_PORT", "587")); err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}
	if cfg.RateLimitAuth, err = strconv.Atoi(envOrDefault("RATE_LIMIT_AUTH", "20")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_AUTH: %w", err)
	}
	if cfg.RateLimitWrite, err = strconv.Atoi(envOrDefault("RATE_LIMIT_WRITE", "60")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WRITE: %w", err)
	}

	defaultExporter := "none"
	if cfg.IsDev() {
		defaultExporter = "stdout"
	}
	switch cfg.TelemetryExporter = envOrDefault("OTEL_EXPORTER", defaultExporter); cfg.TelemetryExporter {
	case "none", "stdout":
	default:
		return nil, fmt.Errorf("OTEL_EXPORTER: unknown exporter %q", cfg.TelemetryExporter)
	}

	if cfg.Policy.AllowInactiveLogin, err = envBool("AUTH_ALLOW_INACTIVE_LOGIN", true); err != nil {
		return nil, err
	}
	if cfg.Policy.AllowSelfFollow, err = envBool("POLICY_ALLOW_SELF_FOLLOW", true); err != nil {
		return nil, err
	}
	if cfg.Policy.AllowSaveOwn, err = envBool("POLICY_ALLOW_SAVE_OWN", true); err != nil {
		return nil, err
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == defaultDBPassword {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.JWTSecret == defaultJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ValkeyAddr returns the Valkey address (host:port).
func (c *Config) ValkeyAddr() string {
	return fmt.Sprintf("%s:%s", c.ValkeyHost, c.ValkeyPort)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
