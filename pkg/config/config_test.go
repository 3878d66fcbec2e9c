package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Lexical.K1 != 1.5 || cfg.Lexical.B != 0.75 {
		t.Errorf("default BM25 params = (%v, %v), want (1.5, 0.75)", cfg.Lexical.K1, cfg.Lexical.B)
	}
	if cfg.Fusion.Strategy != StrategyWeighted && cfg.Fusion.Strategy != StrategyRRF {
		t.Errorf("default fusion strategy %q is not a known strategy", cfg.Fusion.Strategy)
	}
	if cfg.Fusion.RRFConstant < 1 {
		t.Errorf("default rrfConstant = %d, want >= 1", cfg.Fusion.RRFConstant)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9999
fusion:
  strategy: rrf
  rrfConstant: 42
lexical:
  k1: 1.2
  b: 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Fusion.Strategy != StrategyRRF {
		t.Errorf("fusion strategy = %q, want rrf", cfg.Fusion.Strategy)
	}
	if cfg.Fusion.RRFConstant != 42 {
		t.Errorf("rrfConstant = %d, want 42", cfg.Fusion.RRFConstant)
	}
	if cfg.Lexical.K1 != 1.2 || cfg.Lexical.B != 0.5 {
		t.Errorf("BM25 params = (%v, %v), want (1.2, 0.5)", cfg.Lexical.K1, cfg.Lexical.B)
	}
	// Fields the file omits keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BQ_SERVER_PORT", "7070")
	t.Setenv("BQ_POSTGRES_HOST", "db.internal")
	t.Setenv("BQ_FUSION_STRATEGY", "rrf")
	t.Setenv("BQ_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("postgres host = %q, want db.internal", cfg.Postgres.Host)
	}
	if cfg.Fusion.Strategy != StrategyRRF {
		t.Errorf("fusion strategy = %q, want rrf", cfg.Fusion.Strategy)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("kafka brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Fusion.Strategy = "sum" }},
		{"zero k1", func(c *Config) { c.Lexical.K1 = 0 }},
		{"b above one", func(c *Config) { c.Lexical.B = 1.5 }},
		{"zero rrf constant", func(c *Config) { c.Fusion.RRFConstant = 0 }},
		{"zero candidate multiplier", func(c *Config) { c.Fusion.CandidateMultiplier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
