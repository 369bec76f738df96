package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Addr string `env:"CONCLAVE_TEST_ADDR" envDefault:":9090"`
	TTL  int    `env:"CONCLAVE_TEST_TTL" envDefault:"30"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("expected default addr :9090, got %q", cfg.Addr)
	}
	if cfg.TTL != 30 {
		t.Fatalf("expected default ttl 30, got %d", cfg.TTL)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CONCLAVE_TEST_ADDR", ":7070")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("expected overridden addr :7070, got %q", cfg.Addr)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CONCLAVE_TEST_TTL", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
