package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedAdminPassword != "" {
		t.Fatalf("expected empty SEED_ADMIN_PASSWORD when unset, got %q", cfg.SeedAdminPassword)
	}
}

func TestLoadParsesNumericSettings(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "45")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_MINUTES", "0")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.StockCacheTTL() != 45*time.Second {
		t.Fatalf("unexpected cache ttl %s", cfg.StockCacheTTL())
	}
	if cfg.AccessTokenTTL() != time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.AccessTokenTTL())
	}
	if cfg.MaxLoginAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", cfg.MaxLoginAttempts)
	}
	if cfg.Lockout() != 15*time.Minute {
		t.Fatalf("expected lockout below minimum to fall back, got %s", cfg.Lockout())
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("expected malformed REDIS_DB to fall back, got %d", cfg.RedisDB)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto-migrate to be disabled")
	}
}
