package api

import (
	"encoding/json"
	"net/http"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/relayerr"
)

// ListRequests handles GET /api/v1/request — Follows awaiting admin
// approval under approval-required mode (§4.E).
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Store.ListPendingRequests(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list requests failed", err))
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type requestDecision struct {
	Domain string `json:"domain"`
	Action string `json:"action"` // "accept" or "reject"
}

// DecideRequest handles POST/PATCH /api/v1/request: promotes a pending
// Follow to a subscribed inbox (sending Accept + a reciprocal Follow) or
// drops it (sending Reject) — the admin-facing side of §4.E/§4.F.
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var req requestDecision
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Domain == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "domain is required"))
		return
	}

	pending, err := h.Store.GetPendingRequest(r.Context(), req.Domain)
	if err != nil {
		writeError(w, err)
		return
	}

	followObj := map[string]any{
		"id":     pending.FollowID,
		"type":   "Follow",
		"actor":  pending.Actor,
		"object": h.RelayActorID,
	}

	switch req.Action {
	case "accept":
		inb, err := h.Store.AcceptPendingRequest(r.Context(), req.Domain)
		if err != nil {
			writeError(w, relayerr.Wrap(relayerr.KindTransient, "accept request failed", err))
			return
		}
		accept := activitypub.BuildAccept(h.RelayActorID, pending.FollowID, followObj)
		follow := activitypub.BuildFollow(h.RelayActorID, pending.Actor)
		for _, env := range []activitypub.Envelope{accept, follow} {
			payload, err := json.Marshal(env)
			if err != nil {
				writeError(w, relayerr.Wrap(relayerr.KindFatal, "marshal activity failed", err))
				return
			}
			if err := h.Fanout.EnqueueOne(r.Context(), payload, pending.Domain, pending.InboxURL); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, inb)

	case "reject":
		if err := h.Store.DeletePendingRequest(r.Context(), req.Domain); err != nil {
			writeError(w, relayerr.Wrap(relayerr.KindTransient, "reject request failed", err))
			return
		}
		reject := activitypub.BuildReject(h.RelayActorID, pending.FollowID, followObj)
		payload, err := json.Marshal(reject)
		if err != nil {
			writeError(w, relayerr.Wrap(relayerr.KindFatal, "marshal activity failed", err))
			return
		}
		if err := h.Fanout.EnqueueOne(r.Context(), payload, pending.Domain, pending.InboxURL); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"domain": req.Domain, "action": "reject"})

	default:
		writeError(w, relayerr.New(relayerr.KindValidation, `action must be "accept" or "reject"`))
	}
}
