package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("GATE_SIGNING_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATE_SIGNING_KEY", "k")
	t.Setenv("GATE_DB", "")
	t.Setenv("GATE_TOKEN_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "autonomy_gate.db" {
		t.Fatalf("unexpected default db path %q", cfg.DBPath)
	}
	if cfg.TokenTTL != 5*time.Minute {
		t.Fatalf("unexpected default ttl %v", cfg.TokenTTL)
	}
	if cfg.CandidateMaxShown != 3 {
		t.Fatalf("unexpected default max shown %d", cfg.CandidateMaxShown)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATE_SIGNING_KEY", "k")
	t.Setenv("GATE_TOKEN_TTL", "90s")
	t.Setenv("GATE_CANDIDATE_COOLDOWN", "24h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %v", cfg.TokenTTL)
	}
	if cfg.CandidateCooldown != 24*time.Hour {
		t.Fatalf("expected 24h cooldown, got %v", cfg.CandidateCooldown)
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("GATE_SIGNING_KEY", "k")
	t.Setenv("GATE_TOKEN_TTL", "yesterday")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad ttl")
	}
}
