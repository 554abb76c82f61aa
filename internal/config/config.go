package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Environment names recognised by the service
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Config holds all configuration values for the application
type Config struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment       string        `env:"ENVIRONMENT" envDefault:"production"`
	SupabaseURL       string        `env:"SUPABASE_URL"`
	SupabaseAnonKey   string        `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string        `env:"SUPABASE_JWT_SECRET"` // Optional, enables local access-token verification
	SiteURL           string        `env:"SITE_URL"`            // Platform-provided external URL
	RedisURL          string        `env:"REDIS_URL"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	SupportEmail      string        `env:"SUPPORT_EMAIL" envDefault:"support@carebridge.health"`
	RelayTTL          time.Duration `env:"RELAY_TTL" envDefault:"60s"`
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	cfg.AllowedOrigins = parseOrigins(cfg.AllowedOrigins)

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// BackendConfigured reports whether the auth backend can be reached
func (c *Config) BackendConfigured() bool {
	return len(c.MissingBackendVars()) == 0
}

// MissingBackendVars lists the auth backend variables that are not set
func (c *Config) MissingBackendVars() []string {
	var missing []string
	if strings.TrimSpace(c.SupabaseURL) == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if strings.TrimSpace(c.SupabaseAnonKey) == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	return missing
}

// parseOrigins drops blank entries and surrounding whitespace
func parseOrigins(origins []string) []string {
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
