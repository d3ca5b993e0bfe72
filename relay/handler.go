package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// Handler serves the relay endpoint.
type Handler struct {
	orchestrator Orchestrator
	logger       *slog.Logger
	maxPrompt    int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMaxPromptLength rejects prompts longer than n characters with 413.
// Zero means no limit.
func WithMaxPromptLength(n int) HandlerOption {
	return func(h *Handler) {
		h.maxPrompt = n
	}
}

// NewHandler creates a relay endpoint backed by orch.
func NewHandler(orch Orchestrator, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{orchestrator: orch, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if h.maxPrompt > 0 && utf8.RuneCountInString(req.Prompt) > h.maxPrompt {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: fmt.Sprintf("prompt exceeds maximum length of %d characters", h.maxPrompt),
		})
		return
	}

	resp, err := h.orchestrator.Orchestrate(r.Context(), req)
	if err == nil && resp.Reply == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "orchestrator failed",
			"error", err,
			"task_type", req.TaskType,
		)
		msg := "orchestrator unavailable"
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Message != "" {
			msg = statusErr.Message
		}
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: msg})
		return
	}

	h.logger.InfoContext(r.Context(), "relay reply",
		"task_type", req.TaskType,
		"agent_used", resp.AgentUsed(),
	)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
