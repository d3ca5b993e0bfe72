package taxhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/history"
	"github.com/ourstudio-se/taxhub-chat/relay"
)

var testNow = time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, orch relay.Orchestrator, seed bool) *App {
	t.Helper()

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(&agent.Definition{
		ID:       "icms-sp",
		Name:     "Agente ICMS SP",
		Mode:     agent.ModeCanned,
		Rules:    []agent.Rule{agent.KeywordRule("Na substituição tributária...", "substituição")},
		Fallback: "Posso ajudar com ICMS em SP.",
	}))
	require.NoError(t, registry.Register(&agent.Definition{
		ID:           "irpj",
		Name:         "Agente IRPJ",
		Mode:         agent.ModeRelay,
		TaskType:     "consulta",
		AgentContext: "irpj",
	}))

	app, err := New(Config{
		Agents:       registry,
		Orchestrator: orch,
		SeedExamples: seed,
		Now:          func() time.Time { return testNow },
		Logger:       nil,
	})
	require.NoError(t, err)
	return app
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	session string
}

func (c apiClient) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set(sessionHeader, c.session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNew(t *testing.T) {
	t.Run("returns error without agents", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("returns error with empty registry", func(t *testing.T) {
		_, err := New(Config{Agents: agent.NewRegistry()})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("applies default values", func(t *testing.T) {
		cfg := Config{}.withDefaults()
		assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
		assert.Equal(t, int64(1<<20), cfg.MaxRequestBodySize)
		assert.Equal(t, 4000, cfg.MaxPromptLength)
		assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
		assert.Equal(t, history.DefaultKey, cfg.HistoryKey)
		assert.NotNil(t, cfg.HistoryBackend)
		assert.NotNil(t, cfg.Staging)
		assert.NotNil(t, cfg.Bus)
	})
}

func TestHealthAndAgents(t *testing.T) {
	api := apiClient{t: t, handler: newTestApp(t, nil, false).HTTPHandler()}

	rec := api.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = api.do("GET", "/api/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Agents []agent.Definition `json:"agents"`
	}](t, rec)
	require.Len(t, body.Agents, 2)
	assert.Equal(t, "icms-sp", body.Agents[0].ID)
	assert.Equal(t, agent.ModeRelay, body.Agents[1].Mode)
}

func TestAgentEndpoints(t *testing.T) {
	orch := relay.OrchestratorFunc(func(ctx context.Context, req relay.Request) (relay.Response, error) {
		if req.Prompt == "falhe" {
			return relay.Response{}, errors.New("orchestrator down")
		}
		return relay.Response{Reply: "**15%** sobre o lucro presumido", Metadata: &relay.Metadata{AgentUsed: req.AgentContext}}, nil
	})
	app := newTestApp(t, orch, false)
	api := apiClient{t: t, handler: app.HTTPHandler(), session: "s1"}

	t.Run("canned agent answers", func(t *testing.T) {
		rec := api.do("POST", "/api/v1/agents/icms-sp/messages", `{"message":"Como funciona a substituição?"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[WidgetResponse](t, rec)
		require.NotNil(t, body.Reply)
		assert.Equal(t, "Na substituição tributária...", body.Reply.Content)
		assert.Equal(t, agent.StateIdle, body.State)
	})

	t.Run("relay agent answers", func(t *testing.T) {
		rec := api.do("POST", "/api/v1/agents/irpj/messages", `{"message":"Qual a alíquota?"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[WidgetResponse](t, rec)
		assert.Equal(t, "**15%** sobre o lucro presumido", body.Reply.Content)
	})

	t.Run("relay failure returns the error bubble", func(t *testing.T) {
		rec := api.do("POST", "/api/v1/agents/irpj/messages", `{"message":"falhe"}`)
		require.Equal(t, http.StatusBadGateway, rec.Code)
		body := decode[Error](t, rec)
		assert.Equal(t, agent.ErrorReply, body.Message)
		assert.Equal(t, CodeOrchestratorFailed, body.Code)

		transcript := decode[WidgetResponse](t, api.do("GET", "/api/v1/agents/irpj/transcript", "")).Transcript
		require.Len(t, transcript, 4)
		assert.Equal(t, agent.ErrorReply, transcript[3].Content)
	})

	t.Run("reading a transcript does not create a widget", func(t *testing.T) {
		before := app.Sessions().Len()
		other := apiClient{t: t, handler: api.handler, session: "visitante"}
		rec := other.do("GET", "/api/v1/agents/icms-sp/transcript", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[WidgetResponse](t, rec)
		assert.Equal(t, agent.StateIdle, body.State)
		assert.Empty(t, body.Transcript)
		assert.Equal(t, before, app.Sessions().Len())

		rec = other.do("GET", "/api/v1/agents/nope/transcript", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("input errors", func(t *testing.T) {
		tests := []struct {
			name       string
			client     apiClient
			path, body string
			wantStatus int
			wantCode   string
		}{
			{"empty message", api, "/api/v1/agents/icms-sp/messages", `{"message":"  "}`, http.StatusBadRequest, CodeInvalidInput},
			{"invalid body", api, "/api/v1/agents/icms-sp/messages", `{`, http.StatusBadRequest, CodeInvalidInput},
			{"unknown agent", api, "/api/v1/agents/nope/messages", `{"message":"oi"}`, http.StatusNotFound, CodeNotFound},
			{"missing session", apiClient{t: t, handler: api.handler}, "/api/v1/agents/icms-sp/messages", `{"message":"oi"}`, http.StatusBadRequest, CodeInvalidInput},
			{"too long", api, "/api/v1/agents/icms-sp/messages", fmt.Sprintf(`{"message":%q}`, strings.Repeat("a", 4001)), http.StatusRequestEntityTooLarge, CodeInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := tt.client.do("POST", tt.path, tt.body)
				require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
				assert.Equal(t, tt.wantCode, decode[Error](t, rec).Code)
			})
		}
	})

	t.Run("close saves the conversation", func(t *testing.T) {
		rec := api.do("POST", "/api/v1/agents/icms-sp/close", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[WidgetResponse](t, rec)
		assert.Equal(t, agent.StateClosed, body.State)
		assert.NotZero(t, body.SavedID)

		rec = api.do("GET", "/api/v1/history?agent=icms-sp", "")
		records := decode[struct {
			Records []history.Record `json:"records"`
		}](t, rec).Records
		require.Len(t, records, 1)
		assert.Equal(t, body.SavedID, records[0].ID)
		assert.Equal(t, "Como funciona a substituição?", records[0].Preview)

		rec = api.do("POST", "/api/v1/agents/icms-sp/messages", `{"message":"oi"}`)
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, CodeClosed, decode[Error](t, rec).Code)

		rec = api.do("POST", "/api/v1/agents/icms-sp/reopen", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, agent.StateIdle, decode[WidgetResponse](t, rec).State)
	})

	t.Run("end session", func(t *testing.T) {
		before := app.Sessions().Len()
		rec := api.do("DELETE", "/api/v1/session", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Less(t, app.Sessions().Len(), before)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	app := newTestApp(t, nil, true)
	api := apiClient{t: t, handler: app.HTTPHandler(), session: "s1"}

	t.Run("summary seeds examples", func(t *testing.T) {
		rec := api.do("GET", "/api/v1/history/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[history.Page](t, rec)
		assert.Equal(t, 2, page.Stats.Total)
		assert.Equal(t, 2, page.Stats.Agents)
		assert.Equal(t, "Hoje", page.Stats.LastActivity)
		require.Len(t, page.Agents, 2)
		assert.Equal(t, "icms-sp", page.Agents[0].ID)
	})

	t.Run("list filters", func(t *testing.T) {
		rec := api.do("GET", "/api/v1/history?q=substitui%C3%A7%C3%A3o", "")
		records := decode[struct {
			Records []history.Record `json:"records"`
		}](t, rec).Records
		require.Len(t, records, 1)
		assert.Equal(t, "icms-sp", records[0].AgentID)

		rec = api.do("GET", "/api/v1/history?period=today", "")
		records = decode[struct {
			Records []history.Record `json:"records"`
		}](t, rec).Records
		require.Len(t, records, 1)
		assert.Equal(t, "irpj", records[0].AgentID)

		rec = api.do("GET", "/api/v1/history?period=decade", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list renders html", func(t *testing.T) {
		rec := api.do("GET", "/api/v1/history", "", "Accept", "text/html")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Equal(t, 2, strings.Count(rec.Body.String(), `class="historico-card"`))
	})

	t.Run("save and view", func(t *testing.T) {
		rec := api.do("POST", "/api/v1/history", `{"agentId":"irpj","agentName":"Agente IRPJ","messages":[{"role":"user","content":"Qual o prazo da DCTF?"}]}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		id := decode[map[string]int64](t, rec)["id"]

		rec = api.do("GET", fmt.Sprintf("/api/v1/history/%d", id), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Qual o prazo da DCTF?", decode[history.Record](t, rec).Preview)

		rec = api.do("GET", fmt.Sprintf("/api/v1/history/%d", id), "", "Accept", "text/html")
		assert.Contains(t, rec.Body.String(), "Você")

		rec = api.do("POST", "/api/v1/history", `{"agentId":"irpj","messages":[{"role":"system","content":"x"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = api.do("POST", "/api/v1/history", `{"messages":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("view errors", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, api.do("GET", "/api/v1/history/42", "").Code)
		assert.Equal(t, http.StatusBadRequest, api.do("GET", "/api/v1/history/abc", "").Code)
	})

	t.Run("recover and resume", func(t *testing.T) {
		records := decode[struct {
			Records []history.Record `json:"records"`
		}](t, api.do("GET", "/api/v1/history?agent=icms-sp", "")).Records
		require.Len(t, records, 1)

		rec := api.do("POST", fmt.Sprintf("/api/v1/history/%d/recover", records[0].ID), "")
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		rec = api.do("GET", "/api/v1/handoff", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[WidgetResponse](t, rec)
		assert.Equal(t, "icms-sp", body.AgentID)
		assert.Len(t, body.Transcript, 2)

		assert.Equal(t, http.StatusNoContent, api.do("GET", "/api/v1/handoff", "").Code)

		other := apiClient{t: t, handler: api.handler}
		assert.Equal(t, http.StatusBadRequest, other.do("POST", fmt.Sprintf("/api/v1/history/%d/recover", records[0].ID), "").Code)
	})

	t.Run("delete requires confirmation", func(t *testing.T) {
		records := decode[struct {
			Records []history.Record `json:"records"`
		}](t, api.do("GET", "/api/v1/history?agent=icms-sp", "")).Records
		path := fmt.Sprintf("/api/v1/history/%d", records[0].ID)

		rec := api.do("DELETE", path, "")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeConfirmationRequired, decode[Error](t, rec).Code)

		assert.Equal(t, http.StatusNoContent, api.do("DELETE", path+"?confirm=true", "").Code)
		assert.Equal(t, http.StatusNotFound, api.do("DELETE", path+"?confirm=true", "").Code)
	})

	t.Run("clear all", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, api.do("DELETE", "/api/v1/history", "").Code)
		assert.Equal(t, http.StatusNoContent, api.do("DELETE", "/api/v1/history?confirm=true", "").Code)
		assert.Equal(t, http.StatusNoContent, api.do("DELETE", "/api/v1/history?confirm=true", "").Code)

		rec := api.do("GET", "/api/v1/history", "", "Accept", "text/html")
		assert.Contains(t, rec.Body.String(), "empty-state")
	})
}

func TestRelayEndpoint(t *testing.T) {
	t.Run("with orchestrator", func(t *testing.T) {
		orch := relay.OrchestratorFunc(func(ctx context.Context, req relay.Request) (relay.Response, error) {
			return relay.Response{Reply: "ok: " + req.Prompt}, nil
		})
		api := apiClient{t: t, handler: newTestApp(t, orch, false).HTTPHandler()}

		rec := api.do("POST", "/api/relay", `{"prompt":"IRPJ","task_type":"consulta","agent_context":"irpj"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok: IRPJ", decode[relay.Response](t, rec).Reply)

		rec = api.do("POST", "/api/relay", `{"prompt":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = api.do("POST", "/api/relay", `{"prompt":"`+strings.Repeat("a", 5000)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("without orchestrator", func(t *testing.T) {
		api := apiClient{t: t, handler: newTestApp(t, nil, false).HTTPHandler(), session: "s1"}

		rec := api.do("POST", "/api/relay", `{"prompt":"IRPJ"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = api.do("POST", "/api/v1/agents/irpj/messages", `{"message":"oi"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("wrap: %w", history.ErrRecordNotFound), http.StatusNotFound, CodeNotFound},
		{agent.ErrUnknownAgent, http.StatusNotFound, CodeNotFound},
		{history.ErrConfirmationRequired, http.StatusConflict, CodeConfirmationRequired},
		{agent.ErrBusy, http.StatusConflict, CodeBusy},
		{agent.ErrClosed, http.StatusGone, CodeClosed},
		{agent.ErrEmptyPrompt, http.StatusBadRequest, CodeInvalidInput},
		{agent.ErrNoRelay, http.StatusBadGateway, CodeOrchestratorFailed},
		{fmt.Errorf("%w: bad json", history.ErrCorruptStore), http.StatusInternalServerError, CodeCorruptStore},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
