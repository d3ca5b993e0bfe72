package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           string
	AgentsDir      string
	AllowedOrigins []string
	SeedExamples   bool
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int

	History      HistoryConfig
	Orchestrator OrchestratorConfig
	Handoff      HandoffConfig
}

type HistoryConfig struct {
	Backend     string // "bolt", "postgres" or "memory"
	Key         string
	BoltPath    string
	DatabaseURL string
	Table       string
}

type OrchestratorConfig struct {
	Provider     string // "http", "openai", "anthropic" or "none"
	URL          string
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
}

type HandoffConfig struct {
	Staging    string // "memory" or "redis"
	RedisURL   string
	TTL        time.Duration
	Bridge     bool
	BridgeChan string
}

// LoadConfig loads configuration from environment variables.
// In development a .env file is loaded first when present.
func LoadConfig() (Config, error) {
	if getEnv("TAXHUB_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:            getEnv("TAXHUB_ENV", "development"),
		Port:           getEnv("PORT", "3000"),
		AgentsDir:      getEnv("AGENTS_DIR", "agents"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		SeedExamples:   getEnvBool("SEED_EXAMPLES", true),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		RateLimit:      getEnvFloat("PROMPT_RATE_LIMIT", 2),
		RateBurst:      getEnvInt("PROMPT_RATE_BURST", 10),
		History: HistoryConfig{
			Backend:     getEnv("HISTORY_BACKEND", "bolt"),
			Key:         getEnv("HISTORY_KEY", "taxhub_historico"),
			BoltPath:    getEnv("HISTORY_BOLT_PATH", "data/taxhub.db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			Table:       getEnv("HISTORY_TABLE", "taxhub_kv"),
		},
		Orchestrator: OrchestratorConfig{
			Provider:     getEnv("ORCHESTRATOR_PROVIDER", "http"),
			URL:          getEnv("ORCHESTRATOR_URL", "http://localhost:8000/orchestrate"),
			APIKey:       getEnv("ORCHESTRATOR_API_KEY", ""),
			BaseURL:      getEnv("ORCHESTRATOR_BASE_URL", ""),
			Model:        getEnv("ORCHESTRATOR_MODEL", ""),
			MaxTokens:    getEnvInt("ORCHESTRATOR_MAX_TOKENS", 2048),
			SystemPrompt: getEnv("ORCHESTRATOR_SYSTEM_PROMPT", ""),
		},
		Handoff: HandoffConfig{
			Staging:    getEnv("HANDOFF_STAGING", "memory"),
			RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),
			TTL:        getEnvDuration("HANDOFF_TTL", 10*time.Minute),
			Bridge:     getEnvBool("HANDOFF_REDIS_BRIDGE", false),
			BridgeChan: getEnv("HANDOFF_REDIS_CHANNEL", "taxhub:handoff"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.History.Backend {
	case "bolt", "memory":
	case "postgres":
		if c.History.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres history backend")
		}
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.History.Backend)
	}

	switch c.Orchestrator.Provider {
	case "none", "http", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown ORCHESTRATOR_PROVIDER %q", c.Orchestrator.Provider)
	}

	switch c.Handoff.Staging {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown HANDOFF_STAGING %q", c.Handoff.Staging)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// usesRedis reports whether any component needs a redis client.
func (c Config) usesRedis() bool {
	return c.Handoff.Staging == "redis" || c.Handoff.Bridge
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
