package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ourstudio-se/taxhub-chat/history"
)

var (
	ErrBusy           = errors.New("a message is already being sent")
	ErrClosed         = errors.New("chat is closed")
	ErrEmptyPrompt    = errors.New("message is empty")
	ErrResponder      = errors.New("agent failed to answer")
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrMissingSession = errors.New("session id is required")
)

// ErrorReply is the bubble shown when an answer could not be produced.
const ErrorReply = "Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."

// State is the widget lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "sending":
		*s = StateSending
	case "closed":
		*s = StateClosed
	default:
		return fmt.Errorf("unknown widget state %q", text)
	}
	return nil
}

// HistorySaver stores finished conversations.
type HistorySaver interface {
	Save(ctx context.Context, agentID, agentName string, messages []history.Message) (int64, error)
}

// CloseNotifier is told when a widget closes.
type CloseNotifier interface {
	NotifyClosed(ctx context.Context, sessionID, agentID, agentName string)
}

// Widget is one chat window of one agent in one session.
type Widget struct {
	def       *Definition
	sessionID string
	responder Responder
	saver     HistorySaver
	notifier  CloseNotifier
	now       func() time.Time
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	transcript []history.Message
	// gen changes whenever the conversation is replaced; replies for an
	// older generation are dropped.
	gen uint64
}

// WidgetConfig configures a Widget.
type WidgetConfig struct {
	Definition *Definition
	SessionID  string
	Responder  Responder

	// Saver and Notifier are optional.
	Saver    HistorySaver
	Notifier CloseNotifier

	Now    func() time.Time
	Logger *slog.Logger
}

// NewWidget creates an idle widget with an empty transcript.
func NewWidget(cfg WidgetConfig) *Widget {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Responder == nil {
		cfg.Responder = ModeResponder{}
	}
	return &Widget{
		def:       cfg.Definition,
		sessionID: cfg.SessionID,
		responder: cfg.Responder,
		saver:     cfg.Saver,
		notifier:  cfg.Notifier,
		now:       cfg.Now,
		logger:    cfg.Logger.With("agent_id", cfg.Definition.ID),
	}
}

// Definition returns the agent definition.
func (w *Widget) Definition() *Definition {
	return w.def
}

// State returns the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Transcript returns a copy of the conversation so far.
func (w *Widget) Transcript() []history.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]history.Message(nil), w.transcript...)
}

// Send posts a user prompt and waits for the agent's answer.
// Only one send may be in flight. On failure an error bubble is appended and
// returned together with an error wrapping ErrResponder.
func (w *Widget) Send(ctx context.Context, prompt string) (history.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return history.Message{}, ErrEmptyPrompt
	}

	w.mu.Lock()
	switch w.state {
	case StateClosed:
		w.mu.Unlock()
		return history.Message{}, ErrClosed
	case StateSending:
		w.mu.Unlock()
		return history.Message{}, ErrBusy
	}
	w.state = StateSending
	w.transcript = append(w.transcript, w.message(history.RoleUser, prompt))
	gen := w.gen
	w.mu.Unlock()

	reply, err := w.responder.Respond(ctx, w.def, prompt)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.gen != gen || w.state != StateSending {
		// closed or reset while waiting; the answer is discarded
		return history.Message{}, ErrClosed
	}
	w.state = StateIdle

	if err != nil {
		w.logger.ErrorContext(ctx, "agent failed to answer", "error", err)
		bubble := w.message(history.RoleBot, ErrorReply)
		w.transcript = append(w.transcript, bubble)
		return bubble, fmt.Errorf("%w: %v", ErrResponder, err)
	}

	msg := w.message(history.RoleBot, reply.Content)
	w.transcript = append(w.transcript, msg)
	w.logger.DebugContext(ctx, "agent answered", "agent_used", reply.AgentUsed)
	return msg, nil
}

// Close closes the chat, saves a non-empty transcript to history and
// notifies listeners. It returns the saved record id, or 0 when nothing was
// saved. Closing a closed widget is a no-op.
func (w *Widget) Close(ctx context.Context) (int64, error) {
	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return 0, nil
	}
	w.state = StateClosed
	w.gen++
	transcript := append([]history.Message(nil), w.transcript...)
	w.mu.Unlock()

	var id int64
	if len(transcript) > 0 && w.saver != nil {
		var err error
		id, err = w.saver.Save(ctx, w.def.ID, w.def.Name, transcript)
		if err != nil {
			return 0, fmt.Errorf("saving conversation: %w", err)
		}
		w.logger.InfoContext(ctx, "conversation saved", "id", id, "messages", len(transcript))
	}

	if w.notifier != nil {
		w.notifier.NotifyClosed(ctx, w.sessionID, w.def.ID, w.def.Name)
	}
	return id, nil
}

// Reopen starts a fresh conversation.
func (w *Widget) Reopen() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
	w.gen++
	w.transcript = nil
}

// Restore replaces the transcript with a recovered conversation and reopens
// the widget.
func (w *Widget) Restore(messages []history.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateSending {
		return ErrBusy
	}
	w.state = StateIdle
	w.gen++
	w.transcript = append([]history.Message(nil), messages...)
	return nil
}

func (w *Widget) message(role history.Role, content string) history.Message {
	return history.Message{
		Role:      role,
		Content:   content,
		Timestamp: history.FormatTimestamp(w.now()),
	}
}
