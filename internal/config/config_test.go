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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Vision.DetectionThreshold != 0.5 {
		t.Errorf("DetectionThreshold = %v, want 0.5", cfg.Vision.DetectionThreshold)
	}
	if cfg.Vision.InferenceTimeout != 10*time.Second {
		t.Errorf("InferenceTimeout = %v, want 10s", cfg.Vision.InferenceTimeout)
	}
	if cfg.Match.DistanceThreshold != 0.65 {
		t.Errorf("Match.DistanceThreshold = %v, want 0.65", cfg.Match.DistanceThreshold)
	}
	if cfg.Match.TieMargin != 0.05 {
		t.Errorf("Match.TieMargin = %v, want 0.05", cfg.Match.TieMargin)
	}
	if cfg.Redact.Mode != "gaussian" {
		t.Errorf("Redact.Mode = %q, want gaussian", cfg.Redact.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
  api_key: secret
database:
  host: db.internal
  name: classguard
  user: cg
  password: pw
match:
  distance_threshold: 0.5
redact:
  mode: pixelate
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("APIKey = %q", cfg.Server.APIKey)
	}
	if cfg.Match.DistanceThreshold != 0.5 {
		t.Errorf("DistanceThreshold = %v, want 0.5", cfg.Match.DistanceThreshold)
	}
	if cfg.Redact.Mode != "pixelate" {
		t.Errorf("Redact.Mode = %q, want pixelate", cfg.Redact.Mode)
	}

	want := "postgres://cg:pw@db.internal:5432/classguard?sslmode=disable"
	if dsn := cfg.Database.DSN(); dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CG_SERVER_PORT", "7070")
	t.Setenv("CG_API_KEY", "from-env")
	t.Setenv("CG_DB_HOST", "envhost")
	t.Setenv("CG_MATCH_THRESHOLD", "0.4")

	path := writeConfig(t, "server:\n  port: 9999\n  api_key: from-yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env override lost: Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("env override lost: APIKey = %q", cfg.Server.APIKey)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("env override lost: Database.Host = %q", cfg.Database.Host)
	}
	if cfg.Match.DistanceThreshold != 0.4 {
		t.Errorf("env override lost: DistanceThreshold = %v", cfg.Match.DistanceThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
