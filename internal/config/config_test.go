package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}

	if cfg.Feed.PageSize != 100 {
		t.Fatalf("expected default page size 100, got %d", cfg.Feed.PageSize)
	}
	if cfg.Feed.Breaker.MaxFailures != 3 {
		t.Fatalf("expected default breaker threshold 3, got %d", cfg.Feed.Breaker.MaxFailures)
	}
	if cfg.Notification.Cooldown != 5*time.Minute {
		t.Fatalf("expected 5m notification cooldown, got %s", cfg.Notification.Cooldown)
	}
	if cfg.Detection.MaxATHRatio != 10.0 {
		t.Fatalf("expected plausibility ratio 10, got %v", cfg.Detection.MaxATHRatio)
	}
	if cfg.Notification.Mailer.Enabled {
		t.Fatal("mailer should be disabled by default")
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Fatalf("expected 5s default query timeout, got %s", cfg.Database.QueryTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
feed:
  page_size: 50
  pages: 2
  api_keys: key-a,key-b
notification:
  cooldown: 15m
server:
  trigger_secret: s3cret
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Feed.PageSize != 50 || cfg.Feed.Pages != 2 {
		t.Fatalf("feed overrides not applied: %+v", cfg.Feed)
	}
	if len(cfg.Feed.APIKeys) != 2 || cfg.Feed.APIKeys[0] != "key-a" {
		t.Fatalf("expected two api keys, got %v", cfg.Feed.APIKeys)
	}
	if cfg.Notification.Cooldown != 15*time.Minute {
		t.Fatalf("expected 15m cooldown, got %s", cfg.Notification.Cooldown)
	}
	if cfg.Server.TriggerSecret != "s3cret" {
		t.Fatalf("trigger secret not applied: %q", cfg.Server.TriggerSecret)
	}
	// defaults survive partial files
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load defaults: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.Feed.Pages = 0 }},
		{"oversized page", func(c *Config) { c.Feed.PageSize = 500 }},
		{"ratio at one", func(c *Config) { c.Detection.MaxATHRatio = 1 }},
		{"zero cooldown", func(c *Config) { c.Notification.Cooldown = 0 }},
		{"mailer without key", func(c *Config) { c.Notification.Mailer.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
