package taxhub

import (
	"log/slog"
	"time"

	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/handoff"
	"github.com/ourstudio-se/taxhub-chat/history"
	"github.com/ourstudio-se/taxhub-chat/relay"
)

// Config configures the application.
type Config struct {
	// Agents is the agent catalog.
	// Required.
	Agents *agent.Registry

	// HistoryBackend persists the conversation history.
	// Optional - defaults to in-memory storage.
	HistoryBackend history.Backend

	// HistoryKey is the storage key of the history blob.
	// Defaults to history.DefaultKey.
	HistoryKey string

	// SeedExamples stores two example conversations when the history is empty.
	SeedExamples bool

	// Orchestrator answers relay agents and the relay endpoint.
	// Optional - without it relay agents fail and /api/relay returns 502.
	Orchestrator relay.Orchestrator

	// Bus carries hand-off notifications.
	// Optional - defaults to a new in-process bus.
	Bus *handoff.Bus

	// Staging holds recovered conversations until the agent resumes them.
	// Optional - defaults to in-memory staging.
	Staging handoff.Staging

	// Logger is the structured logger.
	// Optional - defaults to slog.Default().
	Logger *slog.Logger

	// Now is the clock.
	// Defaults to time.Now.
	Now func() time.Time

	// RequestTimeout is the maximum time for a request.
	// Defaults to 60 seconds. Websocket connections are exempt.
	RequestTimeout time.Duration

	// MaxRequestBodySize limits request bodies in bytes.
	// Defaults to 1 MiB.
	MaxRequestBodySize int64

	// MaxPromptLength limits agent prompts in characters.
	// Defaults to 4000.
	MaxPromptLength int

	// PromptRateLimit is the sustained prompts per second allowed per session
	// on the agent and relay endpoints. Zero disables limiting.
	PromptRateLimit float64

	// PromptBurst is the number of prompts allowed in a burst.
	// Defaults to 5 when limiting is enabled.
	PromptBurst int

	// AllowedOrigins for CORS in the HTTP server.
	// Defaults to allowing all origins.
	AllowedOrigins []string
}

// withDefaults applies default values to the config.
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.HistoryBackend == nil {
		c.HistoryBackend = history.NewMemoryBackend()
	}
	if c.HistoryKey == "" {
		c.HistoryKey = history.DefaultKey
	}
	if c.Bus == nil {
		c.Bus = handoff.NewBus(c.Logger)
	}
	if c.Staging == nil {
		c.Staging = handoff.NewMemoryStaging(handoff.DefaultStagingTTL)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 1 << 20
	}
	if c.MaxPromptLength <= 0 {
		c.MaxPromptLength = 4000
	}
	if c.PromptRateLimit > 0 && c.PromptBurst <= 0 {
		c.PromptBurst = 5
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	return c
}

// validate checks that required config fields are set.
func (c Config) validate() error {
	if c.Agents == nil {
		return NewConfigurationError("Agents registry is required")
	}
	if c.Agents.Len() == 0 {
		return NewConfigurationError("Agents registry is empty")
	}
	return nil
}
