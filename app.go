// Package taxhub serves the tax portal's chat agents, their conversation
// history and the hand-off between them.
package taxhub

import (
	"context"
	"net/http"

	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/handoff"
	"github.com/ourstudio-se/taxhub-chat/history"
	"github.com/ourstudio-se/taxhub-chat/relay"
)

// App wires agents, history and hand-off behind one HTTP handler.
type App struct {
	cfg      Config
	history  *history.Controller
	renderer *history.Renderer
	sessions *agent.Sessions
	handoff  *handoff.Service
	relay    http.Handler
	ws       http.Handler
	handler  http.Handler
}

// New creates a new application instance.
func New(cfg Config) (*App, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store := history.NewStore(cfg.HistoryBackend,
		history.WithKey(cfg.HistoryKey),
		history.WithClock(cfg.Now),
		history.WithLogger(cfg.Logger),
	)
	handoffSvc := handoff.NewService(cfg.Bus, cfg.Staging, cfg.Logger)

	controller := history.NewController(history.ControllerConfig{
		Store:        store,
		Recoverer:    handoffSvc,
		SeedExamples: cfg.SeedExamples,
		Now:          cfg.Now,
		Logger:       cfg.Logger,
	})

	orchestrator := cfg.Orchestrator
	responder := agent.ModeResponder{Canned: agent.NewCannedResponder()}
	if orchestrator != nil {
		responder.Relay = agent.NewRelayResponder(orchestrator)
	} else {
		orchestrator = relay.OrchestratorFunc(func(context.Context, relay.Request) (relay.Response, error) {
			return relay.Response{}, agent.ErrNoRelay
		})
	}

	sessions := agent.NewSessions(agent.SessionsConfig{
		Registry:  cfg.Agents,
		Responder: responder,
		Saver:     controller,
		Notifier:  handoffSvc,
		Now:       cfg.Now,
		Logger:    cfg.Logger,
	})

	a := &App{
		cfg:      cfg,
		history:  controller,
		renderer: history.NewRenderer(),
		sessions: sessions,
		handoff:  handoffSvc,
		relay:    relay.NewHandler(orchestrator, cfg.Logger, relay.WithMaxPromptLength(cfg.MaxPromptLength)),
		ws:       handoff.NewWSHandler(cfg.Bus, cfg.Logger),
	}
	a.handler = a.newHTTPRouter()
	return a, nil
}

// Init seeds the history on first run.
func (a *App) Init(ctx context.Context) (history.Page, error) {
	return a.history.Init(ctx)
}

// HTTPHandler returns the HTTP handler serving the API.
func (a *App) HTTPHandler() http.Handler {
	return a.handler
}

// History returns the history controller.
func (a *App) History() *history.Controller {
	return a.history
}

// Sessions returns the live agent widgets.
func (a *App) Sessions() *agent.Sessions {
	return a.sessions
}

// Handoff returns the hand-off service.
func (a *App) Handoff() *handoff.Service {
	return a.handoff
}
