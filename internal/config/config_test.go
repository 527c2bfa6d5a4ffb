package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_TOKEN_SECRET", "test-secret-at-least-16-chars!!")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.StoreDriver != "mongo" {
		t.Errorf("StoreDriver = %q, want mongo", cfg.StoreDriver)
	}
	if cfg.ReportCacheTTL != 5*time.Minute {
		t.Errorf("ReportCacheTTL = %v, want 5m", cfg.ReportCacheTTL)
	}
	if cfg.SnapshotSchedule != "@daily" {
		t.Errorf("SnapshotSchedule = %q, want @daily", cfg.SnapshotSchedule)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty (cache off by default)", cfg.RedisAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_TOKEN_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/t.db")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.StoreDriver != "sqlite" {
		t.Errorf("StoreDriver = %q, want sqlite", cfg.StoreDriver)
	}
	if cfg.SQLitePath != "/tmp/t.db" {
		t.Errorf("SQLitePath = %q, want /tmp/t.db", cfg.SQLitePath)
	}
	if cfg.ReportCacheTTL != 90*time.Second {
		t.Errorf("ReportCacheTTL = %v, want 90s", cfg.ReportCacheTTL)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
}

func TestLoadRequiresServiceSecret(t *testing.T) {
	// t.Setenv registers cleanup, so blanking the secret here cannot leak
	// into other tests even if one is running with a real environment.
	t.Setenv("SERVICE_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with empty SERVICE_TOKEN_SECRET succeeded, want error")
	}
}
