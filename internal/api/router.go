package api

import (
	"github.com/go-chi/chi/v5"
)

// Mount wires /api/v1/* onto r, generalizing the teacher's admin route
// table (internal/server/server.go) to the resources named in §6/§4.H.
func Mount(r chi.Router, h *Handler) {
	r.Post("/api/v1/token", h.HandleToken)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireToken)

		r.Get("/api/v1/config", h.ListConfig)
		r.Post("/api/v1/config", h.PutConfig)
		r.Patch("/api/v1/config", h.PutConfig)
		r.Delete("/api/v1/config", h.DeleteConfig)

		r.Get("/api/v1/instance", h.ListInstances)
		r.Post("/api/v1/instance", h.AddInstance)
		r.Patch("/api/v1/instance", h.AddInstance)
		r.Delete("/api/v1/instance", h.DeleteInstance)

		r.Get("/api/v1/domain_ban", h.ListDomainBans)
		r.Post("/api/v1/domain_ban", h.PutDomainBan)
		r.Patch("/api/v1/domain_ban", h.PutDomainBan)
		r.Delete("/api/v1/domain_ban", h.DeleteDomainBan)

		r.Get("/api/v1/software_ban", h.ListSoftwareBans)
		r.Post("/api/v1/software_ban", h.PutSoftwareBan)
		r.Patch("/api/v1/software_ban", h.PutSoftwareBan)
		r.Delete("/api/v1/software_ban", h.DeleteSoftwareBan)

		r.Get("/api/v1/whitelist", h.ListWhitelist)
		r.Post("/api/v1/whitelist", h.PutWhitelistEntry)
		r.Patch("/api/v1/whitelist", h.PutWhitelistEntry)
		r.Delete("/api/v1/whitelist", h.DeleteWhitelistEntry)

		r.Get("/api/v1/user", h.ListUsers)
		r.Post("/api/v1/user", h.PutUser)
		r.Patch("/api/v1/user", h.PutUser)
		r.Delete("/api/v1/user", h.DeleteUser)

		r.Get("/api/v1/request", h.ListRequests)
		r.Post("/api/v1/request", h.DecideRequest)
		r.Patch("/api/v1/request", h.DecideRequest)
	})
}
