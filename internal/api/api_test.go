package api_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mastodon-ml/relay/internal/api"
	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/fanout"
	"github.com/mastodon-ml/relay/internal/kv"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
)

const relayActorID = "https://relay.example/actor"

type harness struct {
	st     *store.Store
	fanout *fanout.Engine
	srv    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite://file:"+t.Name()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	cache := kv.NewDBCache(st)
	pol := policy.NewEngine(st)
	client := apclient.New(cache, pol)

	relayKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fe := fanout.New(st, pol, relayActorID+"#main-key", relayKey, 1)

	h := api.NewHandler(st, client, fe, relayActorID)
	r := chi.NewRouter()
	api.Mount(r, h)

	return &harness{st: st, fanout: fe, srv: httptest.NewServer(r)}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (h *harness) createUserAndToken(t *testing.T) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"username": "admin", "password": "hunter2"})
	// No user yet: token exchange must fail before we create one.
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	ctx := context.Background()
	require.NoError(t, h.st.PutUser(ctx, store.User{Username: "admin", Hash: bcryptHash(t, "hunter2")}))

	resp = h.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"username": "admin", "password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	resp.Body.Close()
	require.NotEmpty(t, tr.Code)
	return tr.Code
}

// TestScenarioF_AuthRequired: POST /api/v1/domain_ban without a bearer
// token -> 401; with a valid token -> 200 and the row present.
func TestScenarioF_AuthRequired(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/domain_ban", "", map[string]string{"domain": "bad.example"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	token := h.createUserAndToken(t)

	resp = h.do(t, http.MethodPost, "/api/v1/domain_ban", token, map[string]string{"domain": "bad.example", "reason": "spam"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err := h.st.GetDomainBan(context.Background(), "bad.example")
	require.NoError(t, err)
}

func TestDomainBanCascadeDeletesInboxes(t *testing.T) {
	h := newHarness(t)
	token := h.createUserAndToken(t)
	ctx := context.Background()

	require.NoError(t, h.st.PutInbox(ctx, store.Inbox{
		Domain: "evil.example", Actor: "https://evil.example/u/a",
		InboxURL: "https://evil.example/inbox", FollowID: "https://evil.example/f/1",
	}))

	resp := h.do(t, http.MethodPost, "/api/v1/domain_ban", token, map[string]string{"domain": "evil.example", "reason": "spam"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err := h.st.GetInboxByDomain(ctx, "evil.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfigCRUD(t *testing.T) {
	h := newHarness(t)
	token := h.createUserAndToken(t)

	resp := h.do(t, http.MethodPost, "/api/v1/config", token, map[string]string{"key": "name", "value": "Test Relay", "type": "str"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	entry, err := h.st.GetConfig(context.Background(), "name")
	require.NoError(t, err)
	require.Equal(t, "Test Relay", entry.Value)

	resp = h.do(t, http.MethodDelete, "/api/v1/config?key=name", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err = h.st.GetConfig(context.Background(), "name")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func bcryptHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}
