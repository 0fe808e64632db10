package policy_test

import (
	"testing"

	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBanWinsOverWhitelist(t *testing.T) {
	d := policy.Evaluate(policy.Snapshot{
		WhitelistEnabled: true,
		DomainBanned:     true,
		Whitelisted:      true,
	})
	require.Equal(t, policy.DenyBannedDomain, d)
}

func TestEvaluateSoftwareBanBeforeWhitelist(t *testing.T) {
	d := policy.Evaluate(policy.Snapshot{
		WhitelistEnabled: true,
		SoftwareBanned:   true,
		Whitelisted:      true,
	})
	require.Equal(t, policy.DenyBannedSoftware, d)
}

func TestEvaluateWhitelistGateOnlyWhenEnabled(t *testing.T) {
	require.Equal(t, policy.Allow, policy.Evaluate(policy.Snapshot{WhitelistEnabled: false}))
	require.Equal(t, policy.DenyNotWhitelisted, policy.Evaluate(policy.Snapshot{WhitelistEnabled: true}))
	require.Equal(t, policy.Allow, policy.Evaluate(policy.Snapshot{WhitelistEnabled: true, Whitelisted: true}))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	snap := policy.Snapshot{WhitelistEnabled: true, Whitelisted: true}
	first := policy.Evaluate(snap)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, policy.Evaluate(snap))
	}
}
