package taxhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/history"
)

const sessionHeader = "X-Session-ID"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// SendRequest is the body of POST /api/v1/agents/{agentID}/messages.
type SendRequest struct {
	Message string `json:"message"`
}

// WidgetResponse reports a widget after an action.
type WidgetResponse struct {
	AgentID    string            `json:"agentId"`
	State      agent.State       `json:"state"`
	Reply      *history.Message  `json:"reply,omitempty"`
	SavedID    int64             `json:"savedId,omitempty"`
	Transcript []history.Message `json:"transcript,omitempty"`
}

// SaveRequest is the body of POST /api/v1/history.
type SaveRequest struct {
	AgentID   string            `json:"agentId"`
	AgentName string            `json:"agentName"`
	Messages  []history.Message `json:"messages"`
}

// newHealthHandler returns a handler for health check requests.
func newHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

func (a *App) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"agents": a.sessions.Registry().All()})
}

func (a *App) widget(w http.ResponseWriter, r *http.Request) (*agent.Widget, bool) {
	widget, err := a.sessions.Widget(sessionID(r), chi.URLParam(r, "agentID"))
	if err != nil {
		a.respondErr(w, r, err)
		return nil, false
	}
	return widget, true
}

// handleTranscript reports a widget without creating one; an unknown widget
// is an idle, empty conversation.
func (a *App) handleTranscript(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	widget, ok, err := a.sessions.Lookup(sessionID(r), agentID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, WidgetResponse{AgentID: agentID, State: agent.StateIdle})
		return
	}
	respondJSON(w, http.StatusOK, WidgetResponse{
		AgentID:    widget.Definition().ID,
		State:      widget.State(),
		Transcript: widget.Transcript(),
	})
}

func (a *App) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Message) > a.cfg.MaxPromptLength {
		respondError(w, http.StatusRequestEntityTooLarge, CodeInvalidInput,
			fmt.Sprintf("Message exceeds maximum length of %d characters", a.cfg.MaxPromptLength))
		return
	}

	widget, ok := a.widget(w, r)
	if !ok {
		return
	}

	reply, err := widget.Send(r.Context(), req.Message)
	if errors.Is(err, agent.ErrResponder) {
		// the error bubble is part of the transcript; return it with the failure
		respondError(w, http.StatusBadGateway, CodeOrchestratorFailed, reply.Content)
		return
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, WidgetResponse{
		AgentID: widget.Definition().ID,
		State:   widget.State(),
		Reply:   &reply,
	})
}

func (a *App) handleClose(w http.ResponseWriter, r *http.Request) {
	widget, ok := a.widget(w, r)
	if !ok {
		return
	}
	id, err := widget.Close(r.Context())
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, WidgetResponse{
		AgentID: widget.Definition().ID,
		State:   widget.State(),
		SavedID: id,
	})
}

func (a *App) handleReopen(w http.ResponseWriter, r *http.Request) {
	widget, ok := a.widget(w, r)
	if !ok {
		return
	}
	widget.Reopen()
	respondJSON(w, http.StatusOK, WidgetResponse{
		AgentID: widget.Definition().ID,
		State:   widget.State(),
	})
}

func (a *App) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		a.respondErr(w, r, agent.ErrMissingSession)
		return
	}
	a.sessions.Forget(session)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := history.Criteria{
		SearchTerm: strings.TrimSpace(q.Get("q")),
		AgentID:    q.Get("agent"),
		Period:     history.Period(q.Get("period")),
	}
	switch criteria.Period {
	case history.PeriodAll, history.PeriodToday, history.PeriodWeek, history.PeriodMonth, history.PeriodYear:
	default:
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "Unknown period: "+string(criteria.Period))
		return
	}

	records, err := a.history.List(r.Context(), criteria)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := a.renderer.RenderList(w, records, a.history.Now()); err != nil {
			a.cfg.Logger.ErrorContext(r.Context(), "failed to render history", "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	page, err := a.history.Init(r.Context())
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "agentId is required")
		return
	}
	for _, msg := range req.Messages {
		if msg.Role != history.RoleUser && msg.Role != history.RoleBot {
			respondError(w, http.StatusBadRequest, CodeInvalidInput, "Unknown message role: "+string(msg.Role))
			return
		}
	}

	id, err := a.history.Save(r.Context(), req.AgentID, req.AgentName, req.Messages)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (a *App) handleViewHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := a.history.View(r.Context(), id)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := a.renderer.RenderDetail(w, rec, a.history.Now()); err != nil {
			a.cfg.Logger.ErrorContext(r.Context(), "failed to render conversation", "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (a *App) handleRecoverHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	session := sessionID(r)
	if session == "" {
		a.respondErr(w, r, agent.ErrMissingSession)
		return
	}

	rec, err := a.history.Recover(r.Context(), session, id)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"agentId":  rec.AgentID,
		"messages": rec.Messages,
	})
}

func (a *App) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := a.history.Delete(r.Context(), id, confirmed(r)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.history.ClearAll(r.Context(), confirmed(r)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResume moves the conversation staged for the session into its widget.
func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		a.respondErr(w, r, agent.ErrMissingSession)
		return
	}

	msg, ok, err := a.handoff.Resume(r.Context(), session)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	widget, err := a.sessions.Widget(session, msg.AgentID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := widget.Restore(msg.Messages); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, WidgetResponse{
		AgentID:    msg.AgentID,
		State:      widget.State(),
		Transcript: widget.Transcript(),
	})
}

func sessionID(r *http.Request) string {
	if s := r.Header.Get(sessionHeader); s != "" {
		return s
	}
	return r.URL.Query().Get("session")
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid conversation id")
		return 0, false
	}
	return id, true
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (a *App) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.cfg.Logger.ErrorContext(r.Context(), "request failed",
			"request_id", getRequestID(r.Context()),
			"error", err,
		)
	}
	respondError(w, status, code, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Error{Message: message, Code: code})
}
