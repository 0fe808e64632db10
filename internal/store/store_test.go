package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/mastodon-ml/relay/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite://file:"+t.Name()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Migrate(ctx)) // reapplying must be a no-op

	cfg, err := s.GetConfig(ctx, store.ConfigSchemaVersion)
	require.NoError(t, err)
	require.Equal(t, "1", cfg.Value)
}

func TestPutInboxUpsertByDomain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	inb := store.Inbox{
		Domain:   "a.example",
		Actor:    "https://a.example/u/a",
		InboxURL: "https://a.example/inbox",
		FollowID: "https://a.example/f/1",
	}
	require.NoError(t, s.PutInbox(ctx, inb))

	// Re-Follow with a new followid updates the existing row in place
	// (idempotent Follow, testable property 3).
	inb.FollowID = "https://a.example/f/2"
	require.NoError(t, s.PutInbox(ctx, inb))

	all, err := s.ListSubscribedInboxes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "https://a.example/f/2", all[0].FollowID)
}

func TestDomainBanCascadesInboxDeletion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutInbox(ctx, store.Inbox{
		Domain: "bad.example", Actor: "https://bad.example/u/x",
		InboxURL: "https://bad.example/inbox", FollowID: "https://bad.example/f/1",
	}))
	require.NoError(t, s.PutWhitelistEntry(ctx, "bad.example"))

	require.NoError(t, s.PutDomainBan(ctx, store.DomainBan{Domain: "bad.example", Reason: "spam"}))

	_, err := s.GetInboxByDomain(ctx, "bad.example")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetWhitelistEntry(ctx, "bad.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSoftwareBanExpandsRelaysToken(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutSoftwareBan(ctx, store.SoftwareBan{Name: "RELAYS", Reason: "self-loop"}))

	bans, err := s.ListSoftwareBans(ctx)
	require.NoError(t, err)
	require.Greater(t, len(bans), 1)
}

func TestTokenDeletedWhenUserDeleted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutUser(ctx, store.User{Username: "admin", Hash: "hash"}))
	require.NoError(t, s.PutToken(ctx, store.Token{Token: "tok-1", Username: "admin"}))

	require.NoError(t, s.DeleteUser(ctx, "admin"))

	_, err := s.GetToken(ctx, "tok-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCacheSweepEvictsOlderThanCutoff(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := store.CacheRow{Namespace: "nodeinfo", Key: "a.example", Value: "mastodon", Type: store.ValueString, Updated: time.Now().UTC().Add(-2 * time.Hour)}
	require.NoError(t, s.CacheSet(ctx, old))

	n, err := s.CacheSweep(ctx, "nodeinfo", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.CacheGet(ctx, "nodeinfo", "a.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptPendingRequestPromotesToInbox(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutPendingRequest(ctx, store.PendingRequest{
		Domain: "c.example", Actor: "https://c.example/u/c",
		InboxURL: "https://c.example/inbox", FollowID: "https://c.example/f/9",
	}))

	inb, err := s.AcceptPendingRequest(ctx, "c.example")
	require.NoError(t, err)
	require.Equal(t, store.InboxSubscribed, inb.State)

	_, err = s.GetPendingRequest(ctx, "c.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}
