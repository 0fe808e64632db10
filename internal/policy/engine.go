package policy

import (
	"context"
	"errors"

	"github.com/mastodon-ml/relay/internal/store"
)

// Engine assembles a Snapshot from the store and evaluates it. It is the
// one place in the relay allowed to turn "is this domain banned" into a
// network-free Decision — apclient and ingest both depend on it.
type Engine struct {
	store *store.Store
}

func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Check evaluates domain (and optional software) against current store
// state and returns the Decision; the error is non-nil only when reading
// the store fails.
func (e *Engine) Check(ctx context.Context, domain string, software *string) (Decision, error) {
	snap, err := e.snapshot(ctx, domain, software)
	if err != nil {
		return "", err
	}
	return Evaluate(snap), nil
}

// Allowed is a convenience wrapper returning nil on Allow and an error
// wrapping ErrBlocked (carrying the specific Decision) when denied.
func (e *Engine) Allowed(ctx context.Context, domain string, software *string) error {
	d, err := e.Check(ctx, domain, software)
	if err != nil {
		return err
	}
	if d != Allow {
		return errBlockedDecision{d}
	}
	return nil
}

type errBlockedDecision struct{ decision Decision }

func (e errBlockedDecision) Error() string { return "policy: blocked (" + string(e.decision) + ")" }
func (e errBlockedDecision) Unwrap() error { return ErrBlocked }
func (e errBlockedDecision) Decision() Decision { return e.decision }

func (e *Engine) snapshot(ctx context.Context, domain string, software *string) (Snapshot, error) {
	var snap Snapshot

	whitelistEnabled, err := e.boolConfig(ctx, store.ConfigWhitelistEnabled)
	if err != nil {
		return Snapshot{}, err
	}
	snap.WhitelistEnabled = whitelistEnabled

	_, err = e.store.GetDomainBan(ctx, domain)
	switch {
	case err == nil:
		snap.DomainBanned = true
	case errors.Is(err, store.ErrNotFound):
	default:
		return Snapshot{}, err
	}

	if software != nil && *software != "" {
		_, err = e.store.GetSoftwareBan(ctx, NormalizeSoftware(*software))
		switch {
		case err == nil:
			snap.SoftwareBanned = true
		case errors.Is(err, store.ErrNotFound):
		default:
			return Snapshot{}, err
		}
	}

	if whitelistEnabled {
		_, err = e.store.GetWhitelistEntry(ctx, domain)
		switch {
		case err == nil:
			snap.Whitelisted = true
		case errors.Is(err, store.ErrNotFound):
		default:
			return Snapshot{}, err
		}
	}

	return snap, nil
}

func (e *Engine) boolConfig(ctx context.Context, key string) (bool, error) {
	entry, err := e.store.GetConfig(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.Value == "true", nil
}
