package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// bcryptCost matches the teacher's default cost for admin-facing secrets;
// the hash encoding carries its own cost byte so it can be raised later
// without a migration (§3 User.hash invariant).
const bcryptCost = bcrypt.DefaultCost

// tokenBytes is the size of the random token minted by /api/v1/token,
// base64url-encoded into the opaque "code" returned to the caller.
const tokenBytes = 32

// RequireToken is the bearer-token auth middleware for /api/v1/*,
// generalizing the teacher's single-static-password adminAuth
// (internal/server/admin.go) into a per-user token lookup (§4.H).
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerFromRequest(r)
		if raw == "" {
			writeError(w, relayerr.New(relayerr.KindAuth, "missing bearer token"))
			return
		}
		tok, err := h.Store.GetToken(r.Context(), raw)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, relayerr.New(relayerr.KindAuth, "invalid token"))
				return
			}
			writeError(w, relayerr.Wrap(relayerr.KindTransient, "token lookup failed", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUsername(r.Context(), tok.Username)))
	})
}

func bearerFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	if c, err := r.Cookie("user-token"); err == nil {
		return c.Value
	}
	return ""
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Code string `json:"code"`
}

// HandleToken exchanges {username,password} for an opaque bearer token
// (§6: "POST /api/v1/token -> {code}, sets user-token cookie").
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.Store.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, relayerr.New(relayerr.KindAuth, "invalid credentials"))
			return
		}
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "user lookup failed", err))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(req.Password)); err != nil {
		writeError(w, relayerr.New(relayerr.KindAuth, "invalid credentials"))
		return
	}

	code, err := newToken()
	if err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindFatal, "token generation failed", err))
		return
	}
	if err := h.Store.PutToken(r.Context(), store.Token{Token: code, Username: u.Username}); err != nil {
		writeError(w, relayerr.Wrap(relayerr.KindTransient, "token store failed", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "user-token",
		Value:    code,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, tokenResponse{Code: code})
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	return string(h), err
}
