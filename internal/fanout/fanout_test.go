package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite://file:"+t.Name()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBackoffIsMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		d := backoffSeconds(attempt)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, time.Hour)
		prev = d
	}
	require.Equal(t, time.Hour, backoffSeconds(10), "backoff must cap at 3600s")
	require.Equal(t, 60*time.Second, backoffSeconds(0))
}

func TestRecipientsExcludesOriginDomain(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	pol := policy.NewEngine(st)

	require.NoError(t, st.PutInbox(ctx, store.Inbox{Domain: "origin.example", Actor: "https://origin.example/actor", InboxURL: "https://origin.example/inbox", State: store.InboxSubscribed}))
	require.NoError(t, st.PutInbox(ctx, store.Inbox{Domain: "peer.example", Actor: "https://peer.example/actor", InboxURL: "https://peer.example/inbox", State: store.InboxSubscribed}))

	out, err := recipients(ctx, st, pol, "origin.example")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "peer.example", out[0].Domain)
}

func TestRecipientsSkipsBannedDomain(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	pol := policy.NewEngine(st)

	require.NoError(t, st.PutInbox(ctx, store.Inbox{Domain: "good.example", Actor: "https://good.example/actor", InboxURL: "https://good.example/inbox", State: store.InboxSubscribed}))
	require.NoError(t, st.PutInbox(ctx, store.Inbox{Domain: "bad.example", Actor: "https://bad.example/actor", InboxURL: "https://bad.example/inbox", State: store.InboxSubscribed}))
	require.NoError(t, st.PutDomainBan(ctx, store.DomainBan{Domain: "bad.example", Reason: "spam"}))

	out, err := recipients(ctx, st, pol, "origin.example")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "good.example", out[0].Domain)
}

func TestEnqueueBlocksWhileQueueFull(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	pol := policy.NewEngine(st)
	eng := New(st, pol, "https://relay.example/actor#main-key", nil, 1)
	eng.queue = make(chan Delivery, 1) // shrink for the test; worker pool not started

	require.NoError(t, st.PutInbox(ctx, store.Inbox{Domain: "peer.example", Actor: "https://peer.example/actor", InboxURL: "https://peer.example/inbox", State: store.InboxSubscribed}))

	_, err := eng.Enqueue(ctx, []byte(`{}`), "origin.example")
	require.NoError(t, err)

	done := make(chan struct{})
	var enqueueErr error
	go func() {
		_, enqueueErr = eng.Enqueue(ctx, []byte(`{}`), "origin.example")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second enqueue should have blocked on the full queue")
	case <-time.After(100 * time.Millisecond):
	}

	<-eng.queue // drain one slot so the blocked push can proceed
	<-done
	require.NoError(t, enqueueErr)
}
