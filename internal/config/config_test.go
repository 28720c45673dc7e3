package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/pds-validator/internal/classify"
	"github.com/shpitdev/pds-validator/internal/config"
)

var envVars = []string{
	"GOOGLE_API_KEY", "CSE_ID", "OPENAI_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY",
	"PDSV_PROVIDER", "PDSV_MODEL", "PDSV_ROW_INTERVAL", "PDSV_OUTPUT_DIR",
	"PDSV_SEARCH_BASE_URL", "PDSV_MODEL_BASE_URL", "PDSV_CONFIG", "PDSV_INSECURE_TLS",
}

// unsetEnv clears every variable the loader reads and restores it after the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t)

	cfg, err := config.Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if cfg.Pipeline.RowInterval != 500*time.Millisecond || !cfg.Fetch.InsecureTLS {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	unsetEnv(t)
	path := writeFile(t, "pdsv.yaml", `
output_dir: /tmp/out
search:
  engine_id: yaml-cx
classifier:
  provider: anthropic
  model: claude-test
fetch:
  timeout: 30s
  insecure_tls: false
pipeline:
  row_interval: 2s
`)
	t.Setenv("CSE_ID", "env-cx")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("PDSV_ROW_INTERVAL", "250ms")

	cfg, err := config.Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "/tmp/out" || cfg.Fetch.Timeout != 30*time.Second || cfg.Fetch.InsecureTLS {
		t.Fatalf("yaml values not applied: %#v", cfg)
	}
	if cfg.Search.EngineID != "env-cx" {
		t.Fatalf("env must override yaml, got %q", cfg.Search.EngineID)
	}
	if cfg.Pipeline.RowInterval != 250*time.Millisecond {
		t.Fatalf("unexpected row interval %s", cfg.Pipeline.RowInterval)
	}

	want := classify.BackendConfig{Provider: classify.ProviderAnthropic, APIKey: "ak", Model: "claude-test"}
	if diff := cmp.Diff(want, cfg.Backend()); diff != "" {
		t.Fatalf("backend mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	unsetEnv(t)
	path := writeFile(t, "pdsv.yaml", "output_dir: from-env-path\n")
	t.Setenv("PDSV_CONFIG", path)

	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "from-env-path" {
		t.Fatalf("PDSV_CONFIG not honoured: %q", cfg.OutputDir)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	unsetEnv(t)
	t.Setenv("OPENAI_API_KEY", "real-env-wins")
	dotenv := writeFile(t, ".env", "GOOGLE_API_KEY=g-key\nCSE_ID=dotenv-cx\nOPENAI_API_KEY=from-dotenv\n")

	cfg, err := config.Load("", dotenv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.APIKey != "g-key" || cfg.Search.EngineID != "dotenv-cx" {
		t.Fatalf("dotenv values not applied: %#v", cfg.Search)
	}
	if cfg.Backend().APIKey != "real-env-wins" {
		t.Fatalf("real env must win over .env, got %q", cfg.Backend().APIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		yaml    string
		wantErr string
	}{
		{name: "bad interval", env: map[string]string{"PDSV_ROW_INTERVAL": "soon"}, wantErr: "invalid PDSV_ROW_INTERVAL"},
		{name: "bad bool", env: map[string]string{"PDSV_INSECURE_TLS": "maybe"}, wantErr: "invalid PDSV_INSECURE_TLS"},
		{name: "bad yaml", yaml: "search: [", wantErr: "parse config YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "bad.yaml", tt.yaml)
			}
			_, err := config.Load(path, "")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		unsetEnv(t)
		if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
			t.Fatalf("expected error for missing config file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*config.Config) {}},
		{name: "negative interval", mutate: func(c *config.Config) { c.Pipeline.RowInterval = -time.Second }, wantErr: true},
		{name: "unknown provider", mutate: func(c *config.Config) { c.Classifier.Provider = "llama" }, wantErr: true},
		{name: "skip validated without history", mutate: func(c *config.Config) { c.SkipValidated = true }, wantErr: true},
		{name: "skip validated with history", mutate: func(c *config.Config) { c.SkipValidated = true; c.HistoryDB = "h.db" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate()=%v, wantErr=%t", err, tt.wantErr)
			}
		})
	}
}
