package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  driver: memory
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != "longpoll" {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Extraction.Provider != ProviderKeyword || cfg.Extraction.Timeout != 10*time.Second {
		t.Fatalf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Fanout.FallbackDelay != 30*time.Second {
		t.Fatalf("fallback delay = %v", cfg.Fanout.FallbackDelay)
	}
	if cfg.Sessions.IdleTTL != 30*time.Minute || cfg.Sessions.SweepSchedule != "@every 1m" {
		t.Fatalf("sessions = %+v", cfg.Sessions)
	}
	if cfg.CoreConfig().Telegram.Token != "123:abc" {
		t.Fatal("core config not embedded")
	}
}

func TestLoadReadsSections(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  admin_id: 77
database:
  host: db
  name: pricebot
  user: bot
extraction:
  api_key: key
  timeout: 4s
fanout:
  fallback_delay: 45s
  max_vendors_per_inquiry: 5
sessions:
  keep_forever: true
http:
  listen: ":8080"
  allowed_origins: ["https://shop.example"]
redis:
  addr: "redis:6379"
  ttl: 24h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Database.Port != "5432" {
		t.Fatalf("storage = %+v db = %+v", cfg.Storage, cfg.Database)
	}
	if cfg.Extraction.Provider != ProviderGemini || cfg.Extraction.Timeout != 4*time.Second {
		t.Fatalf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Fanout.FallbackDelay != 45*time.Second || cfg.Fanout.MaxVendorsPerInquiry != 5 {
		t.Fatalf("fanout = %+v", cfg.Fanout)
	}
	if cfg.Sessions.IdleTTL != 0 {
		t.Fatalf("keep_forever should disable eviction, ttl = %v", cfg.Sessions.IdleTTL)
	}
	if cfg.HTTP.Listen != ":8080" || len(cfg.HTTP.AllowedOrigins) != 1 {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.TTL != 24*time.Hour {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Telegram.AdminID != 77 {
		t.Fatalf("admin id = %d", cfg.Telegram.AdminID)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("FANOUT_FALLBACK_DELAY", "5s")
	t.Setenv("HTTP_LISTEN", ":9090")
	path := writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  driver: postgres
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory || cfg.Fanout.FallbackDelay != 5*time.Second || cfg.HTTP.Listen != ":9090" {
		t.Fatalf("env not applied: %+v %+v %+v", cfg.Storage, cfg.Fanout, cfg.HTTP)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "storage:\n  driver: sqlite\n",
		"postgres": "storage:\n  driver: postgres\n",
		"provider": "storage:\n  driver: memory\nextraction:\n  provider: openai\n",
		"gemini":   "storage:\n  driver: memory\nextraction:\n  provider: gemini\n",
		"schedule": "storage:\n  driver: memory\nsessions:\n  sweep_schedule: \"every minute\"\n",
		"ttl":      "storage:\n  driver: memory\nsessions:\n  idle_ttl: -1m\n",
	}
	for name, body := range cases {
		path := writeConfig(t, "telegram:\n  token: \"1:x\"\n"+body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	path := writeConfig(t, "storage:\n  driver: memory\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("missing token: %v", err)
	}
}
