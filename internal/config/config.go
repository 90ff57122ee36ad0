package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// #region config
// Config bundles the runtime settings for the gate. Values come from the
// environment with a .env file as the development convenience.
type Config struct {
	DBPath       string
	RegistryPath string
	SigningKey   []byte
	TokenTTL     time.Duration

	// Readiness surfacing policy.
	CandidateMinSupport float64
	CandidateMaxShown   int
	CandidateCooldown   time.Duration
}

// #endregion config

// #region load
// Load reads .env if present, then the environment, applying defaults for
// everything except the signing key, which has no safe default.
func Load() (Config, error) {
	// Missing .env is fine; explicit env vars win either way.
	godotenv.Load()

	cfg := Config{
		DBPath:              envOr("GATE_DB", "autonomy_gate.db"),
		RegistryPath:        envOr("GATE_REGISTRY", "tools.yaml"),
		TokenTTL:            5 * time.Minute,
		CandidateMinSupport: 3.0,
		CandidateMaxShown:   3,
		CandidateCooldown:   72 * time.Hour,
	}

	key := os.Getenv("GATE_SIGNING_KEY")
	if key == "" {
		return Config{}, fmt.Errorf("GATE_SIGNING_KEY is required")
	}
	cfg.SigningKey = []byte(key)

	if v := os.Getenv("GATE_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid GATE_TOKEN_TTL %q", v)
		}
		cfg.TokenTTL = d
	}
	if v := os.Getenv("GATE_CANDIDATE_MIN_SUPPORT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return Config{}, fmt.Errorf("invalid GATE_CANDIDATE_MIN_SUPPORT %q", v)
		}
		cfg.CandidateMinSupport = f
	}
	if v := os.Getenv("GATE_CANDIDATE_MAX_SHOWN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid GATE_CANDIDATE_MAX_SHOWN %q", v)
		}
		cfg.CandidateMaxShown = n
	}
	if v := os.Getenv("GATE_CANDIDATE_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid GATE_CANDIDATE_COOLDOWN %q", v)
		}
		cfg.CandidateCooldown = d
	}

	return cfg, nil
}

// #endregion load

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
