package api

import (
	"net/http"

	"github.com/mastodon-ml/relay/internal/relayerr"
)

// ListWhitelist handles GET /api/v1/whitelist.
func (h *Handler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListWhitelist(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list whitelist failed", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type whitelistRequest struct {
	Domain string `json:"domain"`
}

// PutWhitelistEntry handles POST/PATCH /api/v1/whitelist.
func (h *Handler) PutWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Domain == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "domain is required"))
		return
	}
	if err := h.Store.PutWhitelistEntry(r.Context(), req.Domain); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "put whitelist entry failed", err))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteWhitelistEntry handles DELETE /api/v1/whitelist?domain=....
func (h *Handler) DeleteWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	domain, ok := requireQueryParam(w, r, "domain")
	if !ok {
		return
	}
	if err := h.Store.DeleteWhitelistEntry(r.Context(), domain); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete whitelist entry failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
