package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.AIExtractionTimeout != 8*time.Second {
		t.Errorf("AIExtractionTimeout = %v, want 8s", cfg.AIExtractionTimeout)
	}
	if cfg.GroqModel == "" {
		t.Error("GroqModel should have a default")
	}
	if cfg.ChatRateIdleTTL != 10*time.Minute {
		t.Errorf("ChatRateIdleTTL = %v, want 10m", cfg.ChatRateIdleTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("AI_EXTRACTION_TIMEOUT", "2s")
	t.Setenv("SESSION_TTL", "1h")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if !cfg.RedisTLS {
		t.Error("RedisTLS should be true")
	}
	if cfg.AIExtractionTimeout != 2*time.Second {
		t.Errorf("AIExtractionTimeout = %v, want 2s", cfg.AIExtractionTimeout)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("AI_EXTRACTION_TIMEOUT", "not-a-duration")

	cfg := Load()
	if cfg.AIExtractionTimeout != 8*time.Second {
		t.Errorf("AIExtractionTimeout = %v, want default 8s", cfg.AIExtractionTimeout)
	}
}
