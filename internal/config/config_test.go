package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sessions.MaxConcurrent != 10 {
		t.Errorf("default max_concurrent = %d, want 10", cfg.Sessions.MaxConcurrent)
	}
	if cfg.Sessions.RunTimeout != 30*time.Minute {
		t.Errorf("default run_timeout = %v, want 30m", cfg.Sessions.RunTimeout)
	}
	if cfg.Sessions.Retention != 24*time.Hour {
		t.Errorf("default retention = %v, want 24h", cfg.Sessions.Retention)
	}
	if cfg.Stream.BacklogCapacity != 256 {
		t.Errorf("default backlog_capacity = %d, want 256", cfg.Stream.BacklogCapacity)
	}
	if cfg.Stream.SubscriberQueue != 64 {
		t.Errorf("default subscriber_queue = %d, want 64", cfg.Stream.SubscriberQueue)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
  auth_token: secret
sessions:
  max_concurrent: 3
  run_timeout: 1m
  cancel_grace: 2s
stream:
  subscriber_queue: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("auth_token = %q, want %q", cfg.Server.AuthToken, "secret")
	}
	if cfg.Sessions.MaxConcurrent != 3 {
		t.Errorf("max_concurrent = %d, want 3", cfg.Sessions.MaxConcurrent)
	}
	if cfg.Sessions.RunTimeout != time.Minute {
		t.Errorf("run_timeout = %v, want 1m", cfg.Sessions.RunTimeout)
	}
	if cfg.Sessions.CancelGrace != 2*time.Second {
		t.Errorf("cancel_grace = %v, want 2s", cfg.Sessions.CancelGrace)
	}
	if cfg.Stream.SubscriberQueue != 8 {
		t.Errorf("subscriber_queue = %d, want 8", cfg.Stream.SubscriberQueue)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Sessions.Retention != 24*time.Hour {
		t.Errorf("retention = %v, want default 24h", cfg.Sessions.Retention)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file returned nil error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of invalid yaml returned nil error")
	}
}
