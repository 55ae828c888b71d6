// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr               string
	Environment        string
	StoreDriver        string
	SQLitePath         string
	DatabaseURL        string
	Timezone           string
	PolicyFile         string
	AccrualInterval    time.Duration
	AccrualWorkers     int
	RateLimitPerSecond float64
	RateLimitBurst     int
	CORSOrigins        []string
	SeedDemo           bool
}

// Load reads a .env file when present, then the process environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() Config {
	cfg := Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", "")),
		SQLitePath:         getEnv("SQLITE_PATH", "leave.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Timezone:           getEnv("TIMEZONE", "Asia/Dhaka"),
		PolicyFile:         getEnv("POLICY_FILE", ""),
		AccrualInterval:    getEnvDuration("ACCRUAL_INTERVAL", 24*time.Hour),
		AccrualWorkers:     getEnvInt("ACCRUAL_WORKERS", 4),
		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"*"}),
		SeedDemo:           getEnvBool("SEED_DEMO", false),
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverSQLite
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = DriverPostgres
		}
	}
	return cfg
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool { return c.Environment == "production" }

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite, postgres or memory, got %q", c.StoreDriver)
	}
	if c.AccrualInterval < 0 {
		return fmt.Errorf("ACCRUAL_INTERVAL must not be negative")
	}
	if c.AccrualWorkers < 1 {
		return fmt.Errorf("ACCRUAL_WORKERS must be at least 1")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
