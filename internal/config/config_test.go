package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
server:
  addr: "127.0.0.1:8087"
auth:
  secret: "s3cret"
  allowed_origins: ["10.0.0.5"]
  rate_limit_per_hour: 10
target:
  base_url: "http://cost-api.internal:8080"
logging:
  level: "info"
  console: true
  file:
    enabled: false
  alerts:
    enabled: false
    min_level: "error"
    rate_per_sec: 1
    telegram:
      token: ""
      chat_id: 0
tasks:
  - id: "sync-billing"
    name: "Sync billing data"
    endpoint: "/internal/tasks/sync-billing"
    method: "POST"
    schedule: "hourly"
    max_duration: "5m"
  - id: "daily-report"
    endpoint: "/internal/tasks/daily-report"
    method: "POST"
    schedule: "daily:02:00"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Secret != "s3cret" || cfg.Auth.RateLimitPerHour != 10 {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if len(cfg.Tasks) != 2 || cfg.Tasks[1].Schedule != "daily:02:00" {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nbogus_section:\n  x: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Auth:   AuthConfig{Secret: "s"},
			Target: TargetConfig{BaseURL: "http://api.internal"},
			Tasks:  []TaskConfig{{ID: "a", Endpoint: "/x", Method: "GET", Schedule: "hourly"}},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.Secret = " " }},
		{"missing base url", func(c *Config) { c.Target.BaseURL = "" }},
		{"relative base url", func(c *Config) { c.Target.BaseURL = "cost-api:8080" }},
		{"no tasks", func(c *Config) { c.Tasks = nil }},
		{"bad storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("tasks[x].max_duration", " 5m "); err != nil || d != 5*time.Minute {
		t.Fatalf("d = %v, err = %v", d, err)
	}
	if d, err := ParseDurationField("target.client_timeout", ""); err != nil || d != 0 {
		t.Fatalf("empty field: d = %v, err = %v", d, err)
	}
	if _, err := ParseDurationField("server.read_timeout", "soon"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseDurationField("server.read_timeout", "-1s"); err == nil {
		t.Fatal("expected negative-duration error")
	}
	if d, err := ParseDurationOrDefault("storage.busy_timeout", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default: d = %v, err = %v", d, err)
	}
}

func TestWatchPublishesChange(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Subscribe(1)
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to attach before mutating the file.
	time.Sleep(300 * time.Millisecond)
	updated := validYAML + "\n  - id: \"cleanup\"\n    endpoint: \"/internal/tasks/cleanup\"\n    method: \"POST\"\n    schedule: \"every:30m\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if len(cfg.Tasks) != 3 {
			t.Fatalf("tasks = %d, want 3", len(cfg.Tasks))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after change")
	}
}

func TestWatchRejectsInvalidChange(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Subscribe(1)
	go func() { _ = m.Watch(ctx) }()

	time.Sleep(300 * time.Millisecond)
	// Invalid: secret removed. Must not be committed or published.
	broken := "auth:\n  secret: \"\"\ntarget:\n  base_url: \"http://x\"\nlogging:\n  level: info\n  console: true\n  file:\n    enabled: false\ntasks: []\nserver: {}\n"
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(1500 * time.Millisecond):
	}
	if m.Get().Auth.Secret != "s3cret" {
		t.Fatal("committed config must be unchanged")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Auth: AuthConfig{Secret: "a"}}
	newCfg := &Config{Auth: AuthConfig{Secret: "b", RateLimitPerHour: 5}}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 1 || changed[0] != "auth" {
		t.Fatalf("changed = %v", changed)
	}
}
