package fanout

import (
	"context"

	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
)

// recipients computes the delivery targets for an activity originating
// from originDomain: every subscribed inbox whose domain differs from the
// origin, minus anything the policy engine currently denies (§4.G:
// "Recipients are computed as: all subscribed inboxes whose domain != the
// actor's domain, minus any banned by the current policy snapshot").
func recipients(ctx context.Context, st *store.Store, pol *policy.Engine, originDomain string) ([]store.Inbox, error) {
	all, err := st.ListSubscribedInboxes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]store.Inbox, 0, len(all))
	for _, inb := range all {
		if inb.Domain == originDomain {
			continue // testable property 6: fan-out exclusion
		}
		if inb.InboxURL == "" {
			continue // §3 invariant 3
		}
		var software *string
		if inb.Software != "" {
			software = &inb.Software
		}
		if err := pol.Allowed(ctx, inb.Domain, software); err != nil {
			continue
		}
		out = append(out, inb)
	}
	return out, nil
}
