// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A local '.env' file,
when present, is loaded first with 'joho/godotenv'; real environment variables
always win over it.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/divvyapp/divvy/internal/platform/constants"
	"github.com/divvyapp/divvy/internal/platform/sec"
)

// Revocation backends.
const (
	RevocationMemory = "memory"
	RevocationRedis  = "redis"
)

// # Configuration Schema

// Config holds all runtime configuration for the Divvy API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS"   envDefault:"25"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"   envDefault:"true"`

	// Key-Value Cache (Redis), required only for the redis revocation backend
	RedisURL string `env:"REDIS_URL"`

	// Token signing: a shared HS256 secret, or an RS256 key pair
	JWTSecret      string `env:"JWT_SECRET,unset"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"divvy.app"`

	// Token and session lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// StoreTimeout bounds every credential and revocation lookup.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// RevocationBackend selects where revoked access tokens are tracked.
	RevocationBackend string `env:"REVOCATION_BACKEND" envDefault:"memory"`

	// BcryptCost is the bcrypt work factor for new password hashes.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Cross-Origin Resource Sharing
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Rate limiting (requests per second per client IP)
	RateLimitRPS        float64 `env:"RATE_LIMIT_RPS"         envDefault:"20"`
	RateLimitBurst      int     `env:"RATE_LIMIT_BURST"       envDefault:"50"`
	LoginRateLimitRPS   float64 `env:"LOGIN_RATE_LIMIT_RPS"   envDefault:"0.2"`
	LoginRateLimitBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"5"`
}

// # Configuration Loading

// Load reads an optional '.env' file, then parses environment variables into a [Config].
func Load() (*Config, error) {

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env file: %w", err)
	}

	// This will fail if any field marked with 'required' is missing.
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a [Config] from an explicit variable set instead of the process environment.
func Parse(variables map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: variables}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	hasKeyPair := c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != ""
	switch {
	case c.JWTSecret == "" && !hasKeyPair:
		errs = append(errs, errors.New("either JWT_SECRET or both JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set"))
	case c.JWTSecret != "" && len(c.JWTSecret) < sec.MinSecretLength:
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", sec.MinSecretLength))
	case !hasKeyPair && (c.JWTPrivKeyPath != "" || c.JWTPubKeyPath != ""):
		errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together"))
	}

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	switch c.RevocationBackend {
	case RevocationMemory:
	case RevocationRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when REVOCATION_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("REVOCATION_BACKEND must be %q or %q, got %q", RevocationMemory, RevocationRedis, c.RevocationBackend))
	}

	if c.RateLimitRPS <= 0 || c.LoginRateLimitRPS <= 0 || c.RateLimitBurst <= 0 || c.LoginRateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UseRSA reports whether tokens are signed with the configured RSA key pair.
func (c *Config) UseRSA() bool {
	return c.JWTSecret == ""
}

// Issuer returns the "iss" claim, falling back to the platform default.
func (c *Config) Issuer() string {
	if c.JWTIssuer == "" {
		return constants.DefaultAuthIssuer
	}
	return c.JWTIssuer
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigin reports whether origin is on the CORS allow-list.
func (c *Config) AllowedOrigin(origin string) bool {
	return slices.ContainsFunc(c.CORSAllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(strings.TrimSpace(allowed), origin)
	})
}
