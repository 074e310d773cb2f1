package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":           "postgres://localhost:5432/permata",
		"REDIS_URL":              "redis://localhost:6379/0",
		"JWT_SECRET":             "secret",
		"PORT":                   "",
		"APP_ENV":                "",
		"TAX_BASIS":              "",
		"MAKING_CHARGE_TAX_RATE": "",
		"SETTLE_MAX_ATTEMPTS":    "",
		"SETTLE_RETRY_BACKOFF":   "",
	})
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "PRE_DISCOUNT", cfg.TaxBasis)
	require.True(t, cfg.MakingTaxRate.Equal(decimal.NewFromInt(5)))
	require.Equal(t, 3, cfg.SettleMaxAttempts)
	require.Equal(t, 50*time.Millisecond, cfg.SettleRetryBackoff)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":           "postgres://localhost:5432/permata",
		"REDIS_URL":              "redis://localhost:6379/0",
		"JWT_SECRET":             "secret",
		"TAX_BASIS":              "post_discount",
		"MAKING_CHARGE_TAX_RATE": "12.5",
		"SETTLE_MAX_ATTEMPTS":    "5",
		"SETTLE_RETRY_BACKOFF":   "200ms",
		"CORS_ALLOWED_ORIGINS":   "https://pos.example.com, https://admin.example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "POST_DISCOUNT", cfg.TaxBasis)
	require.True(t, cfg.MakingTaxRate.Equal(decimal.RequireFromString("12.5")))
	require.Equal(t, 5, cfg.SettleMaxAttempts)
	require.Equal(t, 200*time.Millisecond, cfg.SettleRetryBackoff)
	require.Equal(t, []string{"https://pos.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	})
	require.Error(t, err)
}
