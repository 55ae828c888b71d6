package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ADDR", "STORE_DRIVER", "DATABASE_URL", "ACCRUAL_INTERVAL", "CORS_ORIGINS", "TIMEZONE"} {
		t.Setenv(k, "")
	}

	cfg := config.FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.AccrualInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "Asia/Dhaka", cfg.Timezone)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_DatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://leave@localhost/leave")

	cfg := config.FromEnv()
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("ACCRUAL_INTERVAL", "0")
	t.Setenv("ACCRUAL_WORKERS", "8")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("CORS_ORIGINS", "https://hr.example.com, https://admin.example.com")
	t.Setenv("SEED_DEMO", "true")

	cfg := config.FromEnv()

	assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
	assert.Zero(t, cfg.AccrualInterval)
	assert.Equal(t, 8, cfg.AccrualWorkers)
	assert.InDelta(t, 2.5, cfg.RateLimitPerSecond, 1e-9)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.SeedDemo)
}

func TestFromEnv_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("ACCRUAL_WORKERS", "many")
	t.Setenv("SEED_DEMO", "sometimes")

	cfg := config.FromEnv()
	assert.Equal(t, 4, cfg.AccrualWorkers)
	assert.False(t, cfg.SeedDemo)
}

func TestValidate(t *testing.T) {
	base := config.Config{
		StoreDriver: config.DriverMemory, Timezone: "UTC",
		AccrualWorkers: 1, RateLimitPerSecond: 1, RateLimitBurst: 1,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *config.Config){
		"unknown driver":    func(c *config.Config) { c.StoreDriver = "mongo" },
		"postgres, no url":  func(c *config.Config) { c.StoreDriver = config.DriverPostgres },
		"sqlite, no path":   func(c *config.Config) { c.StoreDriver = config.DriverSQLite },
		"no workers":        func(c *config.Config) { c.AccrualWorkers = 0 },
		"zero rate":         func(c *config.Config) { c.RateLimitPerSecond = 0 },
		"bad timezone":      func(c *config.Config) { c.Timezone = "Mars/Olympus" },
		"negative interval": func(c *config.Config) { c.AccrualInterval = -time.Second },
	}
	for name, mutate := range cases {
		name, mutate := name, mutate
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
