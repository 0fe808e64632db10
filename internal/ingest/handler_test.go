package ingest_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/fanout"
	"github.com/mastodon-ml/relay/internal/httpsig"
	"github.com/mastodon-ml/relay/internal/ingest"
	"github.com/mastodon-ml/relay/internal/kv"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
)

const relayActorID = "https://relay.example/actor"

type testActor struct {
	srv     *httptest.Server
	actorID string
	inbox   string
	key     *rsa.PrivateKey
	keyID   string
	domain  string
}

func newTestActor(t *testing.T) *testActor {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	a := &testActor{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/u/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.NewEncoder(w).Encode(activitypub.Actor{
			ID:    a.actorID,
			Type:  "Person",
			Inbox: a.inbox,
			PublicKey: &activitypub.PublicKey{
				ID:           a.keyID,
				Owner:        a.actorID,
				PublicKeyPem: publicPEM(t, &key.PublicKey),
			},
		})
	})
	mux.HandleFunc("/.well-known/nodeinfo", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	a.srv = httptest.NewServer(mux)
	u, err := url.Parse(a.srv.URL)
	require.NoError(t, err)
	a.domain = u.Hostname()
	a.actorID = a.srv.URL + "/u/a"
	a.inbox = a.srv.URL + "/u/a/inbox"
	a.keyID = a.actorID + "#main-key"
	return a
}

func (a *testActor) sign(req *http.Request, body []byte) {
	err := httpsig.Sign(req, a.keyID, a.key, body)
	if err != nil {
		panic(err)
	}
}

func publicPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

type harness struct {
	st      *store.Store
	handler *ingest.Handler
	fanout  *fanout.Engine
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

	h := ingest.NewHandler(st, pol, client, fe, relayActorID)
	return &harness{st: st, handler: h, fanout: fe}
}

func (h *harness) postInbox(t *testing.T, actor *testActor, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://relay.example/inbox", bytes.NewReader(body))
	actor.sign(req, body)

	rec := httptest.NewRecorder()
	h.handler.ServeInbox(rec, req)
	return rec
}

func followActivity(actor *testActor, id string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":     id,
		"type":   "Follow",
		"actor":  actor.actorID,
		"object": relayActorID,
	})
	return body
}

func TestScenarioA_FollowAccept(t *testing.T) {
	h := newHarness(t)
	actor := newTestActor(t)
	defer actor.srv.Close()

	rec := h.postInbox(t, actor, followActivity(actor, actor.actorID+"/f/1"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	inb, err := h.st.GetInboxByDomain(context.Background(), actor.domain)
	require.NoError(t, err)
	require.Equal(t, actor.actorID+"/f/1", inb.FollowID)

	// Accept + reciprocal Follow, per §4.F step 6.
	queued := h.fanout.QueueForTest()
	require.Len(t, queued, 2)
	for _, d := range queued {
		require.Equal(t, actor.domain, d.RecipientDomain)
	}
}

func TestScenarioB_BannedDomain(t *testing.T) {
	h := newHarness(t)
	actor := newTestActor(t)
	defer actor.srv.Close()

	require.NoError(t, h.st.PutDomainBan(context.Background(), store.DomainBan{Domain: actor.domain, Reason: "test"}))

	rec := h.postInbox(t, actor, followActivity(actor, actor.actorID+"/f/1"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, err := h.st.GetInboxByDomain(context.Background(), actor.domain)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestScenarioD_DedupSuppressesSecondDelivery(t *testing.T) {
	h := newHarness(t)
	actor := newTestActor(t)
	defer actor.srv.Close()

	id := actor.actorID + "/f/dup"
	body := followActivity(actor, id)

	rec1 := h.postInbox(t, actor, body)
	require.Equal(t, http.StatusAccepted, rec1.Code)
	rec2 := h.postInbox(t, actor, body)
	require.Equal(t, http.StatusAccepted, rec2.Code)

	require.Len(t, h.fanout.QueueForTest(), 2, "dedup must suppress the second activity's side effects")
}
