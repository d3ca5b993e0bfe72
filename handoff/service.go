package handoff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ourstudio-se/taxhub-chat/history"
)

// Service publishes hand-off notifications and stages recovered conversations.
type Service struct {
	bus     *Bus
	staging Staging
	logger  *slog.Logger
}

// NewService creates a hand-off service.
func NewService(bus *Bus, staging Staging, logger *slog.Logger) *Service {
	if staging == nil {
		staging = NewMemoryStaging(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: bus, staging: staging, logger: logger}
}

// Recover stages messages for the session and announces the recovery.
func (s *Service) Recover(ctx context.Context, sessionID, agentID string, messages []history.Message) error {
	msg := Message{
		Type:      TypeRecoverConversation,
		AgentID:   agentID,
		SessionID: sessionID,
		Messages:  messages,
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := s.staging.Stage(ctx, sessionID, msg); err != nil {
		return err
	}
	s.bus.Publish(msg)
	return nil
}

// NotifyClosed announces that an agent widget was closed.
func (s *Service) NotifyClosed(ctx context.Context, sessionID, agentID, agentName string) {
	s.bus.Publish(Message{
		Type:      TypeChatClosed,
		AgentID:   agentID,
		AgentName: agentName,
		SessionID: sessionID,
	})
}

// Resume takes the conversation staged for the session, if any.
func (s *Service) Resume(ctx context.Context, sessionID string) (Message, bool, error) {
	msg, ok, err := s.staging.Take(ctx, sessionID)
	if err != nil {
		return Message{}, false, fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	if ok {
		s.logger.InfoContext(ctx, "conversation resumed", "agent_id", msg.AgentID, "messages", len(msg.Messages))
	}
	return msg, ok, nil
}

// Bus returns the underlying bus.
func (s *Service) Bus() *Bus {
	return s.bus
}
