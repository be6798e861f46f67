package config

import "testing"

type testEnv struct {
	ContentDir string `env:"GAMEBOOK_CONTENT_DIR"`
	CacheDir   string `env:"GAMEBOOK_CACHE_DIR" envDefault:"cache"`
}

func TestParseEnvReadsVariables(t *testing.T) {
	t.Setenv("GAMEBOOK_CONTENT_DIR", "/tmp/book")

	var cfg testEnv
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.ContentDir != "/tmp/book" {
		t.Fatalf("expected content dir /tmp/book, got %q", cfg.ContentDir)
	}
	if cfg.CacheDir != "cache" {
		t.Fatalf("expected default cache dir, got %q", cfg.CacheDir)
	}
}

func TestParseEnvRejectsNonPointer(t *testing.T) {
	var cfg testEnv
	if err := ParseEnv(cfg); err == nil {
		t.Fatal("expected error for non-pointer target")
	}
}
