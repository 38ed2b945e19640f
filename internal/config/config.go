// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-in-production"

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        int
	Environment string // "development" | "staging" | "production"
	LogLevel    string

	// Database
	DatabaseURL     string
	DBMaxConns      int
	MigrateOnStart  bool
	MigrationsTable string

	// Security
	JWTSecret           string
	JWTExpiration       time.Duration
	AllowedOrigins      []string
	AllowedOriginSuffix string // deployment domain family, e.g. ".vercel.app"

	// Redis (rate limiting)
	RedisURL           string
	RateLimitRPM       int
	IncidentDailyLimit int

	// Password reset mail
	FrontendURL   string
	ResetTokenTTL time.Duration
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	MailFrom      string

	// Housekeeping
	ResetSweepInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	jwtExp, err := ParseExpiration(getEnv("JWT_EXPIRATION", "7d"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	cfg := &Config{
		Port:        getEnvInt("PORT", 3000),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxConns:      getEnvInt("DB_MAX_CONNS", 10),
		MigrateOnStart:  getEnvBool("MIGRATE_ON_START", false),
		MigrationsTable: getEnv("MIGRATIONS_TABLE", "schema_migrations"),

		JWTSecret:           getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiration:       jwtExp,
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		AllowedOriginSuffix: getEnv("ALLOWED_ORIGIN_SUFFIX", ""),

		RedisURL:           getEnv("REDIS_URL", ""),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 120),
		IncidentDailyLimit: getEnvInt("INCIDENT_DAILY_LIMIT", 20),

		FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		ResetTokenTTL: getEnvDuration("RESET_TOKEN_TTL", 24*time.Hour),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASS", ""),
		MailFrom:      getEnv("MAIL_FROM", "no-reply@example.com"),

		ResetSweepInterval: getEnvDuration("RESET_SWEEP_INTERVAL", time.Hour),
	}

	if cfg.ResetTokenTTL <= 0 {
		return nil, fmt.Errorf("RESET_TOKEN_TTL must be positive, got %s", cfg.ResetTokenTTL)
	}
	if cfg.ResetSweepInterval <= 0 {
		return nil, fmt.Errorf("RESET_SWEEP_INTERVAL must be positive, got %s", cfg.ResetSweepInterval)
	}

	// Validate required fields in production
	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == defaultJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseExpiration accepts a Go duration ("168h") or a day count ("7d").
func ParseExpiration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiration must be positive, got %s", s)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
