package api

import (
	"net/http"

	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// ListDomainBans handles GET /api/v1/domain_ban.
func (h *Handler) ListDomainBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.Store.ListDomainBans(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list domain bans failed", err))
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

// PutDomainBan handles POST/PATCH /api/v1/domain_ban. Cascades (deletes
// every inbox row and whitelist entry for the domain) via the store's own
// transaction — testable property 4.
func (h *Handler) PutDomainBan(w http.ResponseWriter, r *http.Request) {
	var b store.DomainBan
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, err)
		return
	}
	if b.Domain == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "domain is required"))
		return
	}
	if err := h.Store.PutDomainBan(r.Context(), b); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "put domain ban failed", err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteDomainBan handles DELETE /api/v1/domain_ban?domain=....
func (h *Handler) DeleteDomainBan(w http.ResponseWriter, r *http.Request) {
	domain, ok := requireQueryParam(w, r, "domain")
	if !ok {
		return
	}
	if err := h.Store.DeleteDomainBan(r.Context(), domain); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete domain ban failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListSoftwareBans handles GET /api/v1/software_ban.
func (h *Handler) ListSoftwareBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.Store.ListSoftwareBans(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list software bans failed", err))
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

// PutSoftwareBan handles POST/PATCH /api/v1/software_ban. name="RELAYS"
// expands to the well-known relay-software set (store.PutSoftwareBan).
func (h *Handler) PutSoftwareBan(w http.ResponseWriter, r *http.Request) {
	var b store.SoftwareBan
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, err)
		return
	}
	if b.Name == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "name is required"))
		return
	}
	if err := h.Store.PutSoftwareBan(r.Context(), b); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "put software ban failed", err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteSoftwareBan handles DELETE /api/v1/software_ban?name=....
func (h *Handler) DeleteSoftwareBan(w http.ResponseWriter, r *http.Request) {
	name, ok := requireQueryParam(w, r, "name")
	if !ok {
		return
	}
	if err := h.Store.DeleteSoftwareBan(r.Context(), name); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete software ban failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
