// Package handoff carries conversation hand-off notifications between the
// agent widgets, the history view and connected browsers.
//
// Delivery is fire-and-forget: there is no acknowledgement, retry or
// ordering guarantee across subscribers.
package handoff

import (
	"errors"

	"github.com/ourstudio-se/taxhub-chat/history"
)

// Type names a hand-off message.
type Type string

const (
	// TypeChatClosed announces that an agent widget was closed.
	TypeChatClosed Type = "chat-closed"

	// TypeRecoverConversation asks the live agent to resume a saved conversation.
	TypeRecoverConversation Type = "recover-conversation"
)

var (
	ErrUnknownType  = errors.New("unknown hand-off message type")
	ErrMissingAgent = errors.New("hand-off message has no agent id")
)

// Message is the JSON payload exchanged between frames.
type Message struct {
	Type      Type              `json:"type"`
	AgentID   string            `json:"agentId"`
	AgentName string            `json:"agentName,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Messages  []history.Message `json:"messages,omitempty"`

	// set on messages received from another instance
	remote bool
}

// Validate checks the message type and agent id.
func (m Message) Validate() error {
	switch m.Type {
	case TypeChatClosed, TypeRecoverConversation:
	default:
		return ErrUnknownType
	}
	if m.AgentID == "" {
		return ErrMissingAgent
	}
	return nil
}
