// Package ingest implements the relay's inbound ActivityPub surface
// (§4.F): signature verification, dedup, policy gating, and dispatch by
// activity kind into the subscriber state machine and the fan-out engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/fanout"
	"github.com/mastodon-ml/relay/internal/httpsig"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

const maxInboxBody = 1 << 20 // 1 MiB, §4.F step 1

// Handler wires the inbound pipeline to the store, policy engine, AP
// client, and fan-out engine.
type Handler struct {
	Store        *store.Store
	Policy       *policy.Engine
	Client       *apclient.Client
	Fanout       *fanout.Engine
	RelayActorID string // our own actor IRI, target of incoming Follow/Undo

	dedup *dedupRing
}

func NewHandler(st *store.Store, pol *policy.Engine, client *apclient.Client, fe *fanout.Engine, relayActorID string) *Handler {
	return &Handler{
		Store:        st,
		Policy:       pol,
		Client:       client,
		Fanout:       fe,
		RelayActorID: relayActorID,
		dedup:        newDedupRing(dedupCapacity),
	}
}

// ServeInbox implements POST /inbox end to end, per §4.F steps 1-6.
func (h *Handler) ServeInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody+1))
	if err != nil {
		writeError(w, relayerr.New(relayerr.KindValidation, "read error"))
		return
	}
	if len(body) > maxInboxBody {
		writeError(w, relayerr.New(relayerr.KindValidation, "body too large"))
		return
	}

	keyID, err := httpsig.Verify(ctx, r, body, h.Client.ResolveKey)
	if err != nil {
		slog.Warn("inbox signature verification failed", "error", err, "remote", r.RemoteAddr)
		writeError(w, relayerr.Wrap(relayerr.KindSignature, "invalid signature", err))
		return
	}

	var env activitypub.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, relayerr.New(relayerr.KindValidation, "invalid activity JSON"))
		return
	}

	if h.dedup.seen(env.ID) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	actorDomain, err := hostOf(env.Actor)
	if err != nil {
		writeError(w, relayerr.New(relayerr.KindValidation, "invalid actor"))
		return
	}
	keyOwnerDomain, err := hostOf(keyID)
	if err != nil || keyOwnerDomain != actorDomain {
		writeError(w, relayerr.New(relayerr.KindSignature, "keyId owner does not match actor"))
		return
	}

	software := h.softwareOf(ctx, actorDomain)
	if err := h.Policy.Allowed(ctx, actorDomain, software); err != nil {
		if errors.Is(err, policy.ErrBlocked) {
			writeError(w, relayerr.New(relayerr.KindBlocked, "blocked"))
			return
		}
		writeError(w, relayerr.Wrap(relayerr.KindUnknown, "policy check failed", err))
		return
	}

	if err := h.dispatch(ctx, env, body); err != nil {
		slog.Warn("activity dispatch failed", "type", env.Type, "actor", env.Actor, "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) dispatch(ctx context.Context, env activitypub.Envelope, raw []byte) error {
	switch env.Kind() {
	case activitypub.KindFollow:
		return h.handleFollow(ctx, env)
	case activitypub.KindUndo:
		return h.handleUndo(ctx, env)
	case activitypub.KindAccept:
		return h.handleAcceptReject(ctx, env, true)
	case activitypub.KindReject:
		return h.handleAcceptReject(ctx, env, false)
	case activitypub.KindMove:
		target, _ := env.TargetID()
		slog.Info("move activity received, no automatic resubscribe", "actor", env.Actor, "target", target)
		return nil
	case activitypub.KindCreate, activitypub.KindUpdate, activitypub.KindDelete, activitypub.KindAnnounce:
		if !env.IsPublicAudience() {
			return nil
		}
		return h.rebroadcast(ctx, env, raw)
	default:
		return nil
	}
}

// handleFollow implements §4.F step 6's Follow branch and the
// None->PendingApproval|Subscribed transition.
func (h *Handler) handleFollow(ctx context.Context, env activitypub.Envelope) error {
	followedID, err := env.ObjectID()
	if err != nil {
		return err
	}
	if followedID != h.RelayActorID {
		return nil // Follow not addressed to us; nothing to do
	}
	domain, err := hostOf(env.Actor)
	if err != nil {
		return err
	}

	actor, err := h.Client.FetchActor(ctx, env.Actor)
	if err != nil {
		return fmt.Errorf("ingest: resolve follower actor: %w", err)
	}
	inboxURL := actor.Inbox
	if actor.Endpoints != nil && actor.Endpoints.SharedInbox != "" {
		inboxURL = actor.Endpoints.SharedInbox
	}

	approvalRequired, err := h.boolConfig(ctx, store.ConfigApprovalRequired)
	if err != nil {
		return err
	}

	if approvalRequired {
		return h.Store.PutPendingRequest(ctx, store.PendingRequest{
			Domain:   domain,
			Actor:    env.Actor,
			InboxURL: inboxURL,
			FollowID: env.ID,
		})
	}

	if err := h.Store.PutInbox(ctx, store.Inbox{
		Domain:   domain,
		Actor:    env.Actor,
		InboxURL: inboxURL,
		FollowID: env.ID,
		State:    store.InboxSubscribed,
	}); err != nil {
		return err
	}

	accept := activitypub.BuildAccept(h.RelayActorID, env.ID, followActivityObj(env))
	acceptBody := activitypub.WithContext(accept)
	if err := h.enqueueOne(ctx, acceptBody, domain, inboxURL); err != nil {
		return err
	}

	follow := activitypub.BuildFollow(h.RelayActorID, env.Actor)
	return h.enqueueOne(ctx, activitypub.WithContext(follow), domain, inboxURL)
}

// followActivityObj reconstructs the minimal Follow activity shape an
// Accept/Reject wraps as its object, mirroring the teacher's followObj
// map built from the parsed envelope fields.
func followActivityObj(env activitypub.Envelope) map[string]any {
	return map[string]any{
		"id":     env.ID,
		"type":   string(env.Kind()),
		"actor":  env.Actor,
		"object": json.RawMessage(env.Object),
	}
}

// handleUndo implements §4.F's "Undo->Follow: delete inbox row where
// followid matches; enqueue Accept of Undo".
func (h *Handler) handleUndo(ctx context.Context, env activitypub.Envelope) error {
	followID, err := env.ObjectID()
	if err != nil || followID == "" {
		return nil
	}
	inb, err := h.findInboxByFollowID(ctx, followID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := h.Store.DeleteInboxByFollowID(ctx, followID); err != nil {
		return err
	}

	accept := activitypub.BuildAccept(h.RelayActorID, env.ID, followActivityObj(env))
	return h.enqueueOne(ctx, activitypub.WithContext(accept), inb.Domain, inb.InboxURL)
}

// handleAcceptReject updates our local view of an outbound (relay-to-relay)
// Follow, per §4.F: "update our local representation of outbound Follow
// state".
func (h *Handler) handleAcceptReject(ctx context.Context, env activitypub.Envelope, accepted bool) error {
	domain, err := hostOf(env.Actor)
	if err != nil {
		return err
	}
	if accepted {
		slog.Debug("outbound follow accepted", "domain", domain)
		return nil
	}
	slog.Info("outbound follow rejected, removing inbox", "domain", domain)
	return h.Store.DeleteInboxByDomain(ctx, domain)
}

// rebroadcast fans the activity out, per §4.G: an incoming Announce (sent
// by the subscriber itself) is forwarded as received, every other kind is
// wrapped in an Announce from the relay actor.
func (h *Handler) rebroadcast(ctx context.Context, env activitypub.Envelope, raw []byte) error {
	payload := raw
	if env.Kind() != activitypub.KindAnnounce {
		announce := activitypub.WithContext(activitypub.BuildAnnounce(h.RelayActorID, env))
		var err error
		payload, err = json.Marshal(announce)
		if err != nil {
			return err
		}
	}
	domain, err := hostOf(env.Actor)
	if err != nil {
		return err
	}
	_, err = h.Fanout.Enqueue(ctx, payload, domain)
	return err
}

func (h *Handler) enqueueOne(ctx context.Context, activity map[string]any, domain, inboxURL string) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return h.Fanout.EnqueueOne(ctx, payload, domain, inboxURL)
}

func (h *Handler) findInboxByFollowID(ctx context.Context, followID string) (store.Inbox, error) {
	all, err := h.Store.ListAllInboxes(ctx)
	if err != nil {
		return store.Inbox{}, err
	}
	for _, inb := range all {
		if inb.FollowID == followID {
			return inb, nil
		}
	}
	return store.Inbox{}, store.ErrNotFound
}

func (h *Handler) softwareOf(ctx context.Context, domain string) *string {
	ni, err := h.Client.FetchNodeInfo(ctx, domain)
	if err != nil || ni.Software.Name == "" {
		return nil
	}
	name := ni.Software.Name
	return &name
}

func (h *Handler) boolConfig(ctx context.Context, key string) (bool, error) {
	e, err := h.Store.GetConfig(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Value == "true", nil
}

func hostOf(iri string) (string, error) {
	u, err := url.Parse(iri)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("ingest: invalid IRI %q", iri)
	}
	return u.Hostname(), nil
}

func writeError(w http.ResponseWriter, err error) {
	status := relayerr.KindOf(err).HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errMessage(err)})
}

func errMessage(err error) string {
	var re *relayerr.Error
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

