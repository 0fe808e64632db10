// Package api implements the bearer-token authenticated REST management
// surface under /api/v1 (§4.H): thin JSON CRUD over the store, with side
// effects where the spec calls for them (instance add enqueues a Follow,
// domain ban cascades through the store's own transaction).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/fanout"
	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// Handler holds the dependencies every /api/v1 route needs.
type Handler struct {
	Store        *store.Store
	Client       *apclient.Client
	Fanout       *fanout.Engine
	RelayActorID string
}

func NewHandler(st *store.Store, client *apclient.Client, fe *fanout.Engine, relayActorID string) *Handler {
	return &Handler{Store: st, Client: client, Fanout: fe, RelayActorID: relayActorID}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return relayerr.Wrap(relayerr.KindValidation, "malformed JSON body", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	kind := relayerr.KindOf(err)
	if kind == relayerr.KindUnknown {
		if errors.Is(err, store.ErrNotFound) {
			kind = relayerr.KindNotFound
		} else {
			slog.Error("api: unhandled error", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": errMessage(kind, err)})
}

func errMessage(kind relayerr.Kind, err error) string {
	if kind == relayerr.KindBlocked {
		return "blocked"
	}
	if e, ok := relayerr.As(err); ok {
		return e.Message
	}
	return err.Error()
}

// requireQueryParam extracts a required query parameter, writing a
// ValidationError response and returning ok=false if absent.
func requireQueryParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "missing required query parameter "+name))
		return "", false
	}
	return v, true
}

type ctxKey int

const usernameCtxKey ctxKey = 0

func withUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameCtxKey, username)
}

// UsernameFromContext returns the authenticated caller's username, set by
// the bearer-token middleware.
func UsernameFromContext(ctx context.Context) string {
	u, _ := ctx.Value(usernameCtxKey).(string)
	return u
}
