// Package history keeps the saved agent conversations of the portal: a single
// JSON blob of records under one key, a pure filter over it, HTML fragments for
// the list and detail views, and the controller that ties them to user actions.
package history

import (
	"time"
)

// Role identifies who authored a message in a transcript.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// PreviewLength is the number of characters of the first message kept as preview.
const PreviewLength = 150

// EmptyPreview is stored as preview when a record is saved without messages.
const EmptyPreview = "Conversa sem mensagens"

// timestampLayout matches the ISO-8601 form browsers produce with toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is one entry of a transcript.
type Message struct {
	// Role is "user" or "bot".
	Role Role `json:"role"`

	// Content is the message text (bot replies may be Markdown).
	Content string `json:"content"`

	// Timestamp is optional; renderers fall back to the record timestamp.
	Timestamp string `json:"timestamp,omitempty"`
}

// Record is one saved conversation.
type Record struct {
	// ID is derived from the save time in milliseconds and unique in the store.
	ID int64 `json:"id"`

	// AgentID identifies the agent that produced the conversation (e.g. "irpj").
	AgentID string `json:"agentId"`

	// AgentName is the agent display name at save time.
	AgentName string `json:"agentName"`

	// Timestamp is when the conversation was saved, ISO-8601.
	Timestamp string `json:"timestamp"`

	// Messages is the transcript in chronological order.
	Messages []Message `json:"messages"`

	// Preview is the first PreviewLength characters of the first message.
	Preview string `json:"preview"`
}

// Time parses the record timestamp.
func (r Record) Time() (time.Time, error) {
	return parseTimestamp(r.Timestamp)
}

// FormatTimestamp renders t the way records store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// buildPreview returns the preview for a transcript.
func buildPreview(messages []Message) string {
	if len(messages) == 0 || messages[0].Content == "" {
		return EmptyPreview
	}
	runes := []rune(messages[0].Content)
	if len(runes) > PreviewLength {
		runes = runes[:PreviewLength]
	}
	return string(runes)
}
