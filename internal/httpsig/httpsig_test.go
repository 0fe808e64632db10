package httpsig_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mastodon-ml/relay/internal/httpsig"
)

var errNotFound = errors.New("key not found")

const testKeyID = "https://a.example/u/a#main-key"

func signedRequest(t *testing.T, key *rsa.PrivateKey, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://relay.example/inbox", bytes.NewReader(body))
	require.NoError(t, httpsig.Sign(req, testKeyID, key, body))
	return req
}

func resolverFor(key *rsa.PrivateKey) httpsig.KeyResolver {
	return func(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
		if keyID != testKeyID {
			return nil, errNotFound
		}
		return &key.PublicKey, nil
	}
}

// testable property 1: a request signed with Sign verifies successfully
// against the matching public key and returns the signing keyID.
func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)

	got, err := httpsig.Verify(context.Background(), req, body, resolverFor(key))
	require.NoError(t, err)
	require.Equal(t, testKeyID, got)
}

// testable property 2: tampering with the delivered body after signing
// must be detected, whether or not the signature itself is re-checked.
func TestVerifyRejectsTamperedBody(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)

	tampered := []byte(`{"type":"Delete"}`)
	_, err = httpsig.Verify(context.Background(), req, tampered, resolverFor(key))
	require.ErrorIs(t, err, httpsig.ErrDigestMismatch)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)

	_, err = httpsig.Verify(context.Background(), req, body, resolverFor(otherKey))
	require.ErrorIs(t, err, httpsig.ErrSignatureInvalid)
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://relay.example/inbox", bytes.NewReader(nil))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	_, err := httpsig.Verify(context.Background(), req, nil, resolverFor(nil))
	require.ErrorIs(t, err, httpsig.ErrSignatureMissing)
}

func TestVerifyRejectsClockSkew(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)
	req.Header.Set("Date", time.Now().Add(-2*time.Hour).UTC().Format(http.TimeFormat))

	_, err = httpsig.Verify(context.Background(), req, body, resolverFor(key))
	require.ErrorIs(t, err, httpsig.ErrClockSkew)
}

func TestVerifyPropagatesKeyResolverFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, key, body)

	_, err = httpsig.Verify(context.Background(), req, body, func(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
		return nil, errNotFound
	})
	require.ErrorIs(t, err, httpsig.ErrKeyUnavailable)
}
