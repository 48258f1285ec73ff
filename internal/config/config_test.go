package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "abc")
	t.Setenv("DB_AUTO_MIGRATE", "nope")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected default cache ttl, got %d", cfg.ReportCacheTTLSeconds)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate default to stay on")
	}
}

func TestLoadClientTrimsBaseURL(t *testing.T) {
	t.Setenv("BIOCLINICS_API_URL", "https://api.bioclinics.test/")
	t.Setenv("BIOCLINICS_SESSION_FILE", "/tmp/session.json")

	cfg := LoadClient()
	if cfg.APIBaseURL != "https://api.bioclinics.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.SessionFile != "/tmp/session.json" {
		t.Fatalf("unexpected session file %q", cfg.SessionFile)
	}
	if cfg.SearchDebounceMS != 450 {
		t.Fatalf("expected 450ms debounce default, got %d", cfg.SearchDebounceMS)
	}
}

func TestLoadEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9999\nBIOCLINICS_TEST_ONLY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("PORT", "4000")
	t.Setenv("BIOCLINICS_TEST_ONLY", "")
	os.Unsetenv("BIOCLINICS_TEST_ONLY")

	LoadEnv()
	t.Cleanup(func() { os.Unsetenv("BIOCLINICS_TEST_ONLY") })

	if got := os.Getenv("PORT"); got != "4000" {
		t.Fatalf("expected existing PORT to win, got %q", got)
	}
	if got := os.Getenv("BIOCLINICS_TEST_ONLY"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}
