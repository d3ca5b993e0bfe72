package main

import (
	"testing"
	"time"

	"github.com/ourstudio-se/taxhub-chat/agent"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TAXHUB_ENV", "test")
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if cfg.Port != "3000" || cfg.History.Backend != "bolt" || cfg.Handoff.Staging != "memory" {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.usesRedis() {
			t.Error("redis should be off by default")
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("TAXHUB_ENV", "production")
		t.Setenv("HISTORY_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "postgres://localhost/taxhub")
		t.Setenv("HANDOFF_STAGING", "redis")
		t.Setenv("HANDOFF_TTL", "2m")
		t.Setenv("ALLOWED_ORIGINS", "https://portal.example, https://admin.example")
		t.Setenv("ORCHESTRATOR_PROVIDER", "anthropic")
		t.Setenv("PROMPT_RATE_LIMIT", "0.5")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !cfg.IsProduction() || !cfg.usesRedis() {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.RateLimit != 0.5 || cfg.RateBurst != 10 {
			t.Errorf("rate = %v burst = %d", cfg.RateLimit, cfg.RateBurst)
		}
		if cfg.Handoff.TTL != 2*time.Minute {
			t.Errorf("TTL = %s", cfg.Handoff.TTL)
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example" {
			t.Errorf("origins = %v", cfg.AllowedOrigins)
		}
		if newOrchestrator(cfg.Orchestrator) == nil {
			t.Error("expected an orchestrator")
		}
	})

	invalid := map[string]map[string]string{
		"unknown backend":      {"HISTORY_BACKEND": "sqlite"},
		"postgres without dsn": {"HISTORY_BACKEND": "postgres", "DATABASE_URL": ""},
		"unknown provider":     {"ORCHESTRATOR_PROVIDER": "cohere"},
		"unknown staging":      {"HANDOFF_STAGING": "etcd"},
	}
	for name, env := range invalid {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TAXHUB_ENV", "test")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("orchestrator disabled", func(t *testing.T) {
		if newOrchestrator(OrchestratorConfig{Provider: "none"}) != nil {
			t.Error("expected no orchestrator")
		}
	})
}

func TestAgentCatalog(t *testing.T) {
	registry, err := agent.LoadDir("../../agents")
	if err != nil {
		t.Fatalf("bundled agents failed to load: %v", err)
	}
	if registry.Len() < 2 {
		t.Errorf("expected at least 2 agents, got %d", registry.Len())
	}
	if def, ok := registry.Get("irpj"); !ok || def.Mode != agent.ModeRelay {
		t.Error("expected irpj relay agent")
	}
}
