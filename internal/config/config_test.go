package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "REFRESH_EVENT_QUEUE")
	unsetEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.RefreshEventQueue != "ledger_service.balance_refresh" {
		t.Fatalf("expected default RefreshEventQueue, got %q", cfg.RefreshEventQueue)
	}
	if cfg.TransferRateLimitPerMinute != 60 {
		t.Fatalf("expected default TransferRateLimitPerMinute 60, got %d", cfg.TransferRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "cashtrack:rate_limit" {
		t.Fatalf("expected default RedisRateLimitPrefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if !cfg.RunMigrations {
		t.Fatalf("expected RunMigrations to default to true")
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_JWTSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "LEDGER_SERVICE_JWT_SECRET", "alias-only-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-only-secret" {
		t.Fatalf("expected JWTSecret from alias env var, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_NegativeRateLimitDisabled(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit to be disabled, got %d", cfg.TransferRateLimitPerMinute)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
