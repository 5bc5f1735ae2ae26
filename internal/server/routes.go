package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/civilens/civilens/internal/landing"
	"github.com/civilens/civilens/internal/metrics"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps, mount func(r chi.Router)) {
	if deps.Broker == nil {
		deps.Broker = NewBroker()
	}
	clients := NewRegistry(deps, logger)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("CiviLens API", "/openapi.json", "/docs"))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/static/*", handleStatic(landing.Static()))

	// Complaints: HTTP basic auth against the admin password hash.
	r.With(adminAuthMiddleware(deps.AdminPasswordHash)).
		Get("/api/complaints", handleListComplaints(deps.Complaints))

	// Everything below belongs to one browser, identified by the device cookie.
	r.Group(func(r chi.Router) {
		r.Use(deviceMiddleware(clients, deps.CookieSecure))

		// Server-rendered page; forms post and redirect back to /.
		r.Get("/", handleIndex(deps.Renderer, logger))
		r.Post("/menu", handleToggleMenu())
		r.Post("/report/toggle", handleToggleReport(logger))
		r.Post("/flow/tab", handleFormTab(logger))
		r.Post("/flow/phone", handleFormPhone(logger))
		r.Post("/flow/otp", handleFormCode(logger))
		r.Post("/flow/report", handleFormReport(logger))
		r.Post("/flow/rewards", handleFormRewards(logger))

		r.Route("/api/flow", func(r chi.Router) {
			r.Get("/", handleFlowState())
			r.Post("/tab", handleFlowTab(logger))
			r.Post("/phone", handleFlowPhone(logger))
			r.Post("/otp", handleFlowCode(logger))
			r.Post("/report", handleFlowReport(logger))
			r.Post("/rewards", handleFlowRewards(logger))
			r.Get("/events", handleEvents(deps.Broker))
			if deps.FlowFeed != nil {
				r.Mount("/ws", deps.FlowFeed)
			}
		})
	})

	if mount != nil {
		mount(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}
