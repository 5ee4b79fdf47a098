package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Get("/providers", h.ListProviders)

		r.Route("/documents/{docID}", func(r chi.Router) {
			r.Post("/fuse", h.FuseDocument)
			r.Post("/fuse/async", h.RequestFusion)
			r.Get("/decisions", h.ListDecisions)
			r.Get("/summary", h.GetSummary)
		})
	})

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}
}
