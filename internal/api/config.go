package api

import (
	"net/http"

	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// ListConfig handles GET /api/v1/config.
func (h *Handler) ListConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.AllConfig(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list config failed", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// PutConfig handles POST/PATCH /api/v1/config: upserts one key.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var e store.ConfigEntry
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, err)
		return
	}
	if e.Key == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "key is required"))
		return
	}
	if e.Type == "" {
		e.Type = store.ValueString
	}
	if err := h.Store.SetConfig(r.Context(), e); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "set config failed", err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteConfig handles DELETE /api/v1/config?key=....
func (h *Handler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	key, ok := requireQueryParam(w, r, "key")
	if !ok {
		return
	}
	if err := h.Store.DeleteConfig(r.Context(), key); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete config failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
