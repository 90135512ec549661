package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port == "" {
		t.Fatalf("expected default port")
	}
	if cfg.SuggestionTTLSeconds < 1 {
		t.Fatalf("expected positive suggestion TTL, got %d", cfg.SuggestionTTLSeconds)
	}
	if cfg.SessionLimit < 1 {
		t.Fatalf("expected positive session limit, got %d", cfg.SessionLimit)
	}
	if cfg.Address() != ":"+cfg.Port {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}
