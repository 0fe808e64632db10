package api

import (
	"net/http"

	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// userView omits the password hash from JSON responses.
type userView struct {
	Username string `json:"username"`
	Handle   string `json:"handle"`
}

func toUserView(u store.User) userView {
	return userView{Username: u.Username, Handle: u.Handle}
}

// ListUsers handles GET /api/v1/user.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "list users failed", err))
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Handle   string `json:"handle"`
}

// PutUser handles POST/PATCH /api/v1/user: creates a user or, given an
// existing username, rotates its password (re-hashed with bcrypt) and/or
// handle — the store's upsert semantics make create and update the same
// call.
func (h *Handler) PutUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, relayerr.New(relayerr.KindValidation, "username and password are required"))
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindFatal, "password hashing failed", err))
		return
	}
	u := store.User{Username: req.Username, Hash: hash, Handle: req.Handle}
	if err := h.Store.PutUser(r.Context(), u); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "put user failed", err))
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

// DeleteUser handles DELETE /api/v1/user?username=.... Tokens cascade via
// the store's foreign key (§3 invariant 4).
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username, ok := requireQueryParam(w, r, "username")
	if !ok {
		return
	}
	if err := h.Store.DeleteUser(r.Context(), username); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "delete user failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
