package config

import (
	"os"
	"testing"
	"time"
)

var allKeys = []string{
	"READING_HTTP_PORT",
	"READING_DB_DRIVER",
	"READING_DB_DSN",
	"READING_DB_MAX_OPEN_CONNS",
	"READING_TOKEN_SECRET",
	"READING_TOKEN_TTL",
	"READING_PAYSTACK_SECRET_KEY",
	"READING_PAYSTACK_BASE_URL",
	"READING_PAYMENT_CURRENCY",
	"READING_FIRST_USER_FREE",
	"READING_MIN_SESSION_DURATION",
	"READING_SESSION_RETENTION",
	"READING_SWEEP_INTERVAL",
	"READING_RANK_INTERVAL",
	"READING_CLEANUP_INTERVAL",
	"READING_REDIS_ADDR",
	"READING_REDIS_PASSWORD",
	"READING_LOG_LEVEL",
	"READING_LOG_DEV",
	"READING_LOG_FILE",
	"READING_NODE_ID",
}

// clearEnv unsets every READING_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("READING_TOKEN_SECRET", "token-secret")
		t.Setenv("READING_PAYSTACK_SECRET_KEY", "sk_test_123")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Database.Driver != "sqlite" || cfg.Database.MaxOpenConns != 4 {
			t.Fatalf("unexpected database defaults %+v", cfg.Database)
		}
		if cfg.TokenTTL != 24*time.Hour || cfg.MinSessionDuration != time.Hour || cfg.SessionRetention != 30*24*time.Hour {
			t.Fatalf("unexpected duration defaults %+v", cfg)
		}
		if cfg.Jobs.SweepInterval != time.Minute || cfg.Jobs.RankInterval != time.Hour || cfg.Jobs.CleanupInterval != 24*time.Hour {
			t.Fatalf("unexpected job defaults %+v", cfg.Jobs)
		}
		if cfg.Paystack.BaseURL != "https://api.paystack.co" || cfg.PaymentCurrency != "NGN" {
			t.Fatalf("unexpected payment defaults %+v %q", cfg.Paystack, cfg.PaymentCurrency)
		}
		if !cfg.FirstUserFree || cfg.Log.Level != "info" || cfg.Log.Development || cfg.Redis.Addr != "" {
			t.Fatalf("unexpected defaults %+v", cfg)
		}
		if cfg.NodeID != 1 {
			t.Fatalf("expected default node id 1, got %d", cfg.NodeID)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "missing required environment variables: READING_TOKEN_SECRET, READING_PAYSTACK_SECRET_KEY"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("READING_TOKEN_SECRET", "token-secret")
		t.Setenv("READING_PAYSTACK_SECRET_KEY", "sk_test_123")
		t.Setenv("READING_HTTP_PORT", "9090")
		t.Setenv("READING_DB_DRIVER", "Postgres")
		t.Setenv("READING_DB_DSN", "postgres://reading@localhost/reading?sslmode=disable")
		t.Setenv("READING_PAYSTACK_BASE_URL", "http://localhost:4010/")
		t.Setenv("READING_FIRST_USER_FREE", "false")
		t.Setenv("READING_MIN_SESSION_DURATION", "90m")
		t.Setenv("READING_REDIS_ADDR", "localhost:6379")
		t.Setenv("READING_LOG_DEV", "1")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 || cfg.Database.Driver != "postgres" {
			t.Fatalf("unexpected overrides %+v", cfg)
		}
		if cfg.Paystack.BaseURL != "http://localhost:4010" {
			t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.Paystack.BaseURL)
		}
		if cfg.FirstUserFree || cfg.MinSessionDuration != 90*time.Minute || !cfg.Log.Development {
			t.Fatalf("unexpected overrides %+v", cfg)
		}
		if cfg.Redis.Addr != "localhost:6379" {
			t.Fatalf("expected redis address, got %q", cfg.Redis.Addr)
		}
	})

	t.Run("reports invalid values together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("READING_TOKEN_SECRET", "token-secret")
		t.Setenv("READING_PAYSTACK_SECRET_KEY", "sk_test_123")
		t.Setenv("READING_HTTP_PORT", "-1")
		t.Setenv("READING_SWEEP_INTERVAL", "often")
		t.Setenv("READING_DB_DRIVER", "mysql")
		t.Setenv("READING_NODE_ID", "2048")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid environment variable values: READING_HTTP_PORT, READING_SWEEP_INTERVAL, READING_DB_DRIVER, READING_NODE_ID"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}
