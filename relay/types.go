// Package relay forwards agent prompts to an orchestration backend.
//
// The wire format is shared by the HTTP endpoint, the HTTP client and the
// passthrough orchestrator:
//
//	request:  {"prompt": "...", "task_type": "...", "agent_context": "..."}
//	response: {"reply": "...", "metadata": {"agent_used": "..."}}
//	error:    {"error": "..."}
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPrompt = errors.New("prompt is required")
	ErrEmptyReply  = errors.New("orchestrator returned an empty reply")
)

// Request is one prompt sent to the orchestrator.
type Request struct {
	Prompt       string `json:"prompt"`
	TaskType     string `json:"task_type"`
	AgentContext string `json:"agent_context"`
}

// Validate checks that the prompt is not blank.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// Metadata describes how a reply was produced.
type Metadata struct {
	AgentUsed string `json:"agent_used,omitempty"`
}

// Response carries the Markdown reply.
type Response struct {
	Reply    string    `json:"reply"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// AgentUsed returns metadata.agent_used, or "" when absent.
func (r Response) AgentUsed() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.AgentUsed
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the remote side answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay: status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay: status %d: %s", e.StatusCode, e.Message)
}

// Orchestrator produces a reply for a prompt.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req Request) (Response, error)
}

// OrchestratorFunc adapts a function to Orchestrator.
type OrchestratorFunc func(ctx context.Context, req Request) (Response, error)

func (f OrchestratorFunc) Orchestrate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// systemPrompt builds the instructions given to LLM-backed orchestrators.
func systemPrompt(base string, req Request) string {
	var sb strings.Builder
	sb.WriteString(base)
	if req.AgentContext != "" {
		sb.WriteString("\n\nContexto do agente: ")
		sb.WriteString(req.AgentContext)
	}
	if req.TaskType != "" {
		sb.WriteString("\nTipo de tarefa: ")
		sb.WriteString(req.TaskType)
	}
	return sb.String()
}

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "Você é um assistente tributário brasileiro. Responda em português, em Markdown, de forma objetiva e cite a legislação quando possível."
