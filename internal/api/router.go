package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/idmlkit/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
//
// Package names are library-relative paths; nested names are sent with
// encoded slashes (issues%2Fspring.idml).
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewArchiveHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Packages.
	r.Get("/packages", h.ListPackages)
	r.Post("/packages", ah.Upload)
	r.Get("/packages/{name}", h.GetPackage)
	r.Get("/packages/{name}/download", ah.Download)
	r.Post("/packages/{name}/text-ranges", h.AddTextRange)
	r.Put("/packages/{name}/stories/{story}/elements/{element}", h.SetElementText)

	// Search.
	r.Get("/search", h.Search)

	// Transaction journal.
	r.Get("/transactions", h.Transactions)
	r.Post("/transactions/sweep", h.Sweep)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
