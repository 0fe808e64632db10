package apclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/kv"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*apclient.Client, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite://file:"+t.Name()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	cache := kv.NewDBCache(st)
	pol := policy.NewEngine(st)
	return apclient.New(cache, pol), st
}

func TestFetchActorCachesResult(t *testing.T) {
	ctx := context.Background()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"id":"` + r.Host + `","type":"Person","inbox":"https://example/inbox"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	actorURL := srv.URL + "/u/a"

	a1, err := c.FetchActor(ctx, actorURL)
	require.NoError(t, err)
	require.Equal(t, "Person", a1.Type)

	_, err = c.FetchActor(ctx, actorURL)
	require.NoError(t, err)
	require.Equal(t, 1, hits, "second fetch should be served from cache")
}

func TestFetchActorBlockedByDomainBan(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should never reach the network for a banned domain")
	}))
	defer srv.Close()

	c, st := newTestClient(t)
	host := mustHostname(t, srv.URL)
	require.NoError(t, st.PutDomainBan(ctx, store.DomainBan{Domain: host, Reason: "test"}))

	_, err := c.FetchActor(ctx, srv.URL+"/u/a")
	require.ErrorIs(t, err, policy.ErrBlocked)
}

func mustHostname(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Hostname()
}
