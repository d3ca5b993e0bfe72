package taxhub

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// newHTTPRouter creates and configures the Chi router with all middleware and routes.
func (a *App) newHTTPRouter() *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(a.cfg.Logger))
	r.Use(loggingMiddleware(a.cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(timeoutMiddleware(a.cfg.RequestTimeout))
	r.Use(bodySizeLimitMiddleware(a.cfg.MaxRequestBodySize))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", sessionHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	limitPrompts := rateLimitMiddleware(a.cfg.PromptRateLimit, a.cfg.PromptBurst)

	r.Get("/health", newHealthHandler())
	r.With(limitPrompts).Method("POST", "/api/relay", a.relay)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/agents", a.handleListAgents)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/transcript", a.handleTranscript)
			r.With(limitPrompts).Post("/messages", a.handleSend)
			r.Post("/close", a.handleClose)
			r.Post("/reopen", a.handleReopen)
		})
		r.Delete("/session", a.handleEndSession)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", a.handleListHistory)
			r.Post("/", a.handleSaveHistory)
			r.Delete("/", a.handleClearHistory)
			r.Get("/summary", a.handleSummary)
			r.Get("/{id}", a.handleViewHistory)
			r.Post("/{id}/recover", a.handleRecoverHistory)
			r.Delete("/{id}", a.handleDeleteHistory)
		})

		r.Get("/handoff", a.handleResume)
		r.Method("GET", "/events/ws", a.ws)
	})

	return r
}
