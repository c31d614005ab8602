package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.HTTPPort)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default ttl 30m, got %v", cfg.SessionTTL)
	}
	if cfg.ProviderTimeout != 45*time.Second {
		t.Fatalf("expected default provider timeout 45s, got %v", cfg.ProviderTimeout)
	}
	if cfg.SessionMax != 10000 {
		t.Fatalf("expected default session max, got %d", cfg.SessionMax)
	}
	if cfg.RateLimitMax != 30 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d per %v", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("SESSION_SWEEP_INTERVAL", "15s")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != "9090" || cfg.SessionTTL != 10*time.Minute || cfg.SessionSweepInterval != 15*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.GeminiModel != "gemini-test" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfig_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("SESSION_TTL", "0s")
	if _, err := LoadConfig(); !errors.Is(err, ErrInvalidSessionTTL) {
		t.Fatalf("expected ErrInvalidSessionTTL, got %v", err)
	}
}

func TestLoadConfig_RejectsBadDuration(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}

func TestValidate_ClampsNegativeOptionals(t *testing.T) {
	cfg := Config{SessionTTL: time.Minute, ProviderTimeout: time.Second, SessionSweepInterval: -time.Second, SessionMax: -1}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SessionSweepInterval != 0 || cfg.SessionMax != 0 {
		t.Fatalf("expected clamped values, got %+v", cfg)
	}
}
