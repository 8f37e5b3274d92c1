package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ActiveProfile != "" || len(cfg.Profiles) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadProfilesAndDatasources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
active_profile: staging
profiles:
  staging:
    base_url: https://staging.example.com
    variables:
      api_key: abc123
datasources:
  main:
    driver: postgres
    postgres:
      connectionString: "postgres://localhost/test"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ActiveProfile != "staging" {
		t.Fatalf("got %q", cfg.ActiveProfile)
	}
	if cfg.Active().BaseURL != "https://staging.example.com" {
		t.Fatalf("got %+v", cfg.Active())
	}
	ds, ok := cfg.Datasources["main"]
	if !ok || ds.Postgres.MaxOpenConns != 10 {
		t.Fatalf("expected defaulted maxOpenConns=10, got %+v", ds)
	}
}

func TestActiveProfileOverrideRejectsUnknown(t *testing.T) {
	cfg := &Config{Profiles: map[string]Profile{"prod": {}}}
	if err := cfg.ActiveProfileOverride("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if err := cfg.ActiveProfileOverride("prod"); err != nil {
		t.Fatal(err)
	}
}
