package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// ListInstances handles GET /api/v1/instance — every inbox row, subscribed
// or failed.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	inboxes, err := h.Store.ListAllInboxes(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list instances failed", err))
		return
	}
	writeJSON(w, http.StatusOK, inboxes)
}

type addInstanceRequest struct {
	Actor string `json:"actor"`
}

// AddInstance handles POST /api/v1/instance: resolves actor's inbox,
// records it as an immediately-subscribed row, and enqueues a Follow
// (§4.H: "POST /v1/instance enqueues a Follow").
func (h *Handler) AddInstance(w http.ResponseWriter, r *http.Request) {
	var req addInstanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Actor == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "actor is required"))
		return
	}

	u, err := url.Parse(req.Actor)
	if err != nil || u.Hostname() == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "actor must be an absolute URL"))
		return
	}
	domain := u.Hostname()

	actor, err := h.Client.FetchActor(r.Context(), req.Actor)
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "fetch actor failed", err))
		return
	}
	inboxURL := actor.Inbox
	if actor.Endpoints != nil && actor.Endpoints.SharedInbox != "" {
		inboxURL = actor.Endpoints.SharedInbox
	}
	if inboxURL == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "actor has no inbox"))
		return
	}

	follow := activitypub.BuildFollow(h.RelayActorID, req.Actor)
	inb := store.Inbox{
		Domain:   domain,
		Actor:    req.Actor,
		InboxURL: inboxURL,
		FollowID: follow.ID,
		Software: actor.Type,
		State:    store.InboxSubscribed,
	}
	if err := h.Store.PutInbox(r.Context(), inb); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "put inbox failed", err))
		return
	}

	payload, err := json.Marshal(follow)
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindFatal, "marshal follow failed", err))
		return
	}
	if err := h.Fanout.EnqueueOne(r.Context(), payload, domain, inboxURL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inb)
}

// DeleteInstance handles DELETE /api/v1/instance?domain=....
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	domain, ok := requireQueryParam(w, r, "domain")
	if !ok {
		return
	}
	if err := h.Store.DeleteInboxByDomain(r.Context(), domain); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete instance failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
