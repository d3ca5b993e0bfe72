package relay

import (
	"context"
	"fmt"

	oai "github.com/sashabaranov/go-openai"
)

// OpenAIOrchestrator answers prompts with an OpenAI chat completion.
type OpenAIOrchestrator struct {
	client      *oai.Client
	model       string
	system      string
	temperature float32
}

// OpenAIConfig configures OpenAIOrchestrator.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float32
}

// NewOpenAIOrchestrator creates an orchestrator from cfg.
func NewOpenAIOrchestrator(cfg OpenAIConfig) *OpenAIOrchestrator {
	clientCfg := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = oai.GPT4oMini
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &OpenAIOrchestrator{
		client:      oai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		system:      cfg.SystemPrompt,
		temperature: cfg.Temperature,
	}
}

func (o *OpenAIOrchestrator) Orchestrate(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: o.model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: systemPrompt(o.system, req)},
			{Role: oai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: o.temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai returned no choices")
	}

	return Response{
		Reply:    resp.Choices[0].Message.Content,
		Metadata: &Metadata{AgentUsed: resp.Model},
	}, nil
}
