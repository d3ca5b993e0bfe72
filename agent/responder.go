package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ourstudio-se/taxhub-chat/relay"
)

// ErrNoRelay is returned when a relay agent is used without an orchestrator.
var ErrNoRelay = errors.New("relay orchestrator not configured")

// Reply is an agent answer in Markdown.
type Reply struct {
	Content   string
	AgentUsed string
}

// Responder produces the answer of an agent to a prompt.
type Responder interface {
	Respond(ctx context.Context, def *Definition, prompt string) (Reply, error)
}

// CannedResponder answers from the definition's rules after a random delay.
type CannedResponder struct {
	// jitter returns a value in [0, n). Defaults to rand.Int64N.
	jitter func(n int64) int64
}

// NewCannedResponder creates a canned responder.
func NewCannedResponder() *CannedResponder {
	return &CannedResponder{jitter: rand.Int64N}
}

func (r *CannedResponder) Respond(ctx context.Context, def *Definition, prompt string) (Reply, error) {
	if d := r.delay(def.Delay); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Reply{Content: def.Answer(prompt), AgentUsed: def.ID}, nil
}

func (r *CannedResponder) delay(dr DelayRange) time.Duration {
	spread := int64(dr.Max - dr.Min)
	if spread <= 0 {
		return dr.Min
	}
	return dr.Min + time.Duration(r.jitter(spread))
}

// RelayResponder forwards prompts to an orchestrator.
type RelayResponder struct {
	orchestrator relay.Orchestrator
}

// NewRelayResponder creates a responder on orch.
func NewRelayResponder(orch relay.Orchestrator) *RelayResponder {
	return &RelayResponder{orchestrator: orch}
}

func (r *RelayResponder) Respond(ctx context.Context, def *Definition, prompt string) (Reply, error) {
	if r.orchestrator == nil {
		return Reply{}, ErrNoRelay
	}
	resp, err := r.orchestrator.Orchestrate(ctx, relay.Request{
		Prompt:       prompt,
		TaskType:     def.TaskType,
		AgentContext: def.AgentContext,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("agent %s: %w", def.ID, err)
	}
	if resp.Reply == "" {
		return Reply{}, fmt.Errorf("agent %s: %w", def.ID, relay.ErrEmptyReply)
	}
	return Reply{Content: resp.Reply, AgentUsed: resp.AgentUsed()}, nil
}

// ModeResponder picks the responder matching the agent's mode.
type ModeResponder struct {
	Canned Responder
	Relay  Responder
}

func (m ModeResponder) Respond(ctx context.Context, def *Definition, prompt string) (Reply, error) {
	switch def.Mode {
	case ModeRelay:
		if m.Relay == nil {
			return Reply{}, ErrNoRelay
		}
		return m.Relay.Respond(ctx, def, prompt)
	default:
		if m.Canned == nil {
			return NewCannedResponder().Respond(ctx, def, prompt)
		}
		return m.Canned.Respond(ctx, def, prompt)
	}
}
