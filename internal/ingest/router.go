package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mastodon-ml/relay/internal/store"
)

// Mount wires the relay's public ActivityPub surface onto r, generalizing
// the teacher's buildRouter (internal/server/server.go) route table to the
// relay's own endpoint set (§6).
func Mount(r chi.Router, h *Handler, disc *Discovery, st *store.Store) {
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/actor", disc.ServeActor)
	r.Get("/.well-known/webfinger", disc.ServeWebFinger)
	r.Get("/.well-known/nodeinfo", disc.ServeWellKnownNodeInfo)
	r.Get("/nodeinfo/2.0.json", disc.ServeNodeInfo(st))
	r.Post("/inbox", h.ServeInbox)

	r.Get("/api/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
