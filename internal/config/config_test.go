package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("KEYWORDS", "")
	path := writeConfig(t, `
database:
  path: /tmp/jobs.db
keywords:
  - sql
  - power bi
limits:
  max_pages_per_run: 3
  max_items_per_run: 50
http:
  timeout: 5s
  request_delay: 2s
  max_retries: 0
sources:
  finn:
    enabled: true
    location: "2.20001.22046.20220"
  nav:
    enabled: true
    locations: [BERGEN, VESTLAND]
schedule:
  finn: "@every 6h"
expiry:
  stale_threshold: 240h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/jobs.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[1] != "power bi" {
		t.Errorf("Keywords = %v", cfg.Keywords)
	}
	if cfg.Limits.MaxPagesPerRun != 3 || cfg.Limits.MaxItemsPerRun != 50 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if cfg.HTTP.Timeout != 5*time.Second || cfg.HTTP.RequestDelay != 2*time.Second {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.HTTP.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", cfg.HTTP.MaxRetries)
	}
	if len(cfg.Sources.NAV.Locations) != 2 {
		t.Errorf("NAV.Locations = %v", cfg.Sources.NAV.Locations)
	}
	if cfg.Schedule.FINN != "@every 6h" || cfg.Schedule.NAV != "0 9,19 * * *" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Expiry.StaleThreshold != 10*24*time.Hour || cfg.Expiry.MaxAge != 180*24*time.Hour {
		t.Errorf("Expiry = %+v", cfg.Expiry)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KEYWORDS", "")
	cfg, err := Load(writeConfig(t, "sources:\n  nav:\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Keywords) != len(DefaultKeywords) {
		t.Errorf("Keywords = %d entries, want defaults", len(cfg.Keywords))
	}
	if cfg.Database.Path != "jobsync.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.HTTP.RequestDelay != time.Second || cfg.HTTP.MaxRetries != 3 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.AI.Provider != "anthropic" || cfg.AI.BaseURL != "https://api.anthropic.com" || cfg.AI.MaxFilterChars != 1500 {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Notification.Type != "log" || cfg.Server.Addr != ":8080" {
		t.Errorf("Notification = %+v, Server = %+v", cfg.Notification, cfg.Server)
	}
	if cfg.Location().String() != "Europe/Oslo" {
		t.Errorf("Location = %v", cfg.Location())
	}
}

func TestLoad_KeywordsEnvOverride(t *testing.T) {
	t.Setenv("KEYWORDS", " sql , python,, dbt ")
	cfg, err := Load(writeConfig(t, "keywords: [java]\nsources:\n  finn:\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"sql", "python", "dbt"}
	if len(cfg.Keywords) != len(want) {
		t.Fatalf("Keywords = %v, want %v", cfg.Keywords, want)
	}
	for i := range want {
		if cfg.Keywords[i] != want[i] {
			t.Errorf("Keywords = %v, want %v", cfg.Keywords, want)
		}
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("NAV_API_TOKEN", "jwt-123")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, `
sources:
  nav:
    enabled: true
    token: ${NAV_API_TOKEN}
ai:
  filter_enabled: true
  api_key: ${ANTHROPIC_API_KEY}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sources.NAV.Token != "jwt-123" {
		t.Errorf("NAV.Token = %q", cfg.Sources.NAV.Token)
	}
	if cfg.AI.APIKey != "sk-test" || !cfg.AI.Enabled() {
		t.Errorf("AI = %+v", cfg.AI)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "keywords: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no source enabled", "sources:\n  finn:\n    enabled: false\n"},
		{"bad duration", "http:\n  timeout: soon\nsources:\n  nav:\n    enabled: true\n"},
		{"negative limit", "limits:\n  max_items_per_run: -1\nsources:\n  nav:\n    enabled: true\n"},
		{"slack without webhook", "notification:\n  type: slack\nsources:\n  nav:\n    enabled: true\n"},
		{"slack bad webhook", "notification:\n  type: slack\n  webhook_url: https://example.com/x\nsources:\n  nav:\n    enabled: true\n"},
		{"unknown notifier", "notification:\n  type: email\nsources:\n  nav:\n    enabled: true\n"},
		{"ai without key", "ai:\n  summary_enabled: true\nsources:\n  nav:\n    enabled: true\n"},
		{"openai without model", "ai:\n  provider: openai\n  filter_enabled: true\n  api_key: k\nsources:\n  nav:\n    enabled: true\n"},
		{"unknown provider", "ai:\n  provider: cohere\n  filter_enabled: true\n  api_key: k\n  model: m\nsources:\n  nav:\n    enabled: true\n"},
		{"bad timezone", "schedule:\n  timezone: Mars/Olympus\nsources:\n  nav:\n    enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load: expected validation error")
			}
		})
	}
}
