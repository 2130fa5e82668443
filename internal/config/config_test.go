package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RETRIEVAL_FORCE_MODE", "")
	t.Setenv("UNIT_TIMEOUT", "")
	t.Setenv("REPORT_CACHE_TTL", "")

	cfg := Load()
	if cfg.RetrievalForce != "" {
		t.Fatalf("expected no forced retrieval mode, got %q", cfg.RetrievalForce)
	}
	if cfg.UnitTimeout != 30*time.Second {
		t.Fatalf("expected default unit timeout 30s, got %s", cfg.UnitTimeout)
	}
	if cfg.ReportCacheTTL != 24*time.Hour {
		t.Fatalf("expected default cache ttl 24h, got %s", cfg.ReportCacheTTL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_FORCE_MODE", "filtered")
	t.Setenv("UNIT_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LLM_PROVIDER", "openai")

	cfg := Load()
	if cfg.RetrievalForce != "filtered" {
		t.Fatalf("expected forced mode filtered, got %q", cfg.RetrievalForce)
	}
	if cfg.UnitTimeout != 5*time.Second {
		t.Fatalf("expected unit timeout 5s, got %s", cfg.UnitTimeout)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %f", cfg.RateLimitRPS)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected provider openai, got %q", cfg.LLMProvider)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("UNIT_TIMEOUT", "not-a-duration")
	t.Setenv("RETRIEVAL_TOP_K", "many")

	cfg := Load()
	if cfg.UnitTimeout != 30*time.Second {
		t.Fatalf("expected fallback unit timeout, got %s", cfg.UnitTimeout)
	}
	if cfg.RetrievalTopK != 5 {
		t.Fatalf("expected fallback top k 5, got %d", cfg.RetrievalTopK)
	}
}

func TestLoadTuningDefaultsWithoutFile(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if len(tuning.Phase1Units) != 3 {
		t.Fatalf("expected 3 default units, got %v", tuning.Phase1Units)
	}
}

func TestLoadTuningReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := "phase1_units:\n  - risk_classification\n  - compliance_scan\nunit_timeout: 12s\nretrieval_top_k: 8\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if len(tuning.Phase1Units) != 2 || tuning.Phase1Units[0] != "risk_classification" {
		t.Fatalf("unexpected units: %v", tuning.Phase1Units)
	}
	if time.Duration(tuning.UnitTimeout) != 12*time.Second {
		t.Fatalf("expected 12s timeout, got %s", time.Duration(tuning.UnitTimeout))
	}
	if tuning.RetrievalTopK != 8 {
		t.Fatalf("expected top k 8, got %d", tuning.RetrievalTopK)
	}
}

func TestLoadTuningRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("phase1_units: {broken"), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatalf("expected error for malformed tuning file")
	}
}
