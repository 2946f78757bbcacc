package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("NOTION_API_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.NotionBaseURL != "https://api.notion.com/v1" || cfg.NotionVersion != "2022-06-28" {
		t.Fatalf("unexpected notion defaults: %q %q", cfg.NotionBaseURL, cfg.NotionVersion)
	}
	if cfg.NotionToken != "" {
		t.Fatal("missing notion token must not be defaulted")
	}
	if cfg.ReportLocale != "zh" {
		t.Fatalf("expected zh locale, got %q", cfg.ReportLocale)
	}
}

func TestLoadYAMLOverlayYieldsToEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "API_ADDR: \":9000\"\nLLM_PROVIDER: Gemini\nSYNC_LOCK_TTL_SECONDS: 30\nMINIO_SECURE: true\nLOG_LEVEL: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected file addr, got %q", cfg.Addr)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected lowercased provider, got %q", cfg.LLMProvider)
	}
	if cfg.SyncLockTTL != 30*time.Second {
		t.Fatalf("expected 30s lock ttl, got %s", cfg.SyncLockTTL)
	}
	if !cfg.MinioSecure {
		t.Fatal("expected MINIO_SECURE from file")
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("environment must win over file, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("API_ADDR: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
