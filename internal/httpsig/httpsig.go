// Package httpsig signs and verifies draft-cavage HTTP signatures, the
// scheme the Fediverse uses to authenticate ActivityPub deliveries (§4.C).
// It wraps go-fed/httpsig with the exact header set and clock-skew/digest
// checks spec.md names; every failure mode is a distinct sentinel error so
// callers (ingest) can map it straight to an HTTP status.
package httpsig

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// MaxClockSkew is the maximum allowed difference between a request's Date
// header and the server's clock (§4.C: "reject if Date is >1h from server
// time").
const MaxClockSkew = time.Hour

var (
	ErrSignatureMissing   = errors.New("httpsig: signature missing")
	ErrSignatureMalformed = errors.New("httpsig: signature malformed")
	ErrKeyUnavailable     = errors.New("httpsig: signing key unavailable")
	ErrDigestMismatch     = errors.New("httpsig: digest mismatch")
	ErrClockSkew          = errors.New("httpsig: clock skew exceeds allowed window")
	ErrSignatureInvalid   = errors.New("httpsig: signature invalid")
)

// outboundHeaders is the exact header set required for outbound deliveries
// (§4.C). content-type is added by Sign only for requests carrying a body.
var outboundHeaders = []string{httpsig.RequestTarget, "host", "date", "digest", "content-type"}

// Sign attaches Date, Digest, Signature (and Host) headers to req so it can
// be delivered as keyID using privKey. body is the exact bytes that will be
// sent; Sign computes the Digest header from it.
func Sign(req *http.Request, keyID string, privKey *rsa.PrivateKey, body []byte) error {
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	headers := outboundHeaders
	if len(body) == 0 {
		headers = outboundHeaders[:len(outboundHeaders)-1] // drop content-type on bodyless requests
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("httpsig: create signer: %w", err)
	}
	if err := signer.SignRequest(privKey, keyID, req, body); err != nil {
		return fmt.Errorf("httpsig: sign request: %w", err)
	}
	return nil
}

// KeyResolver fetches the RSA public key belonging to keyID
// (typically an actor IRI fragment, e.g. "https://a.example/u/a#main-key").
// Implemented by internal/apclient against the actor-document cache.
type KeyResolver func(ctx context.Context, keyID string) (*rsa.PublicKey, error)

// Verify checks req's Signature header against the key resolver, the
// Digest header (if present) against body, and the Date header against
// MaxClockSkew. It returns the verified keyID on success.
func Verify(ctx context.Context, req *http.Request, body []byte, resolve KeyResolver) (string, error) {
	if req.Header.Get("Signature") == "" && req.Header.Get("Authorization") == "" {
		return "", ErrSignatureMissing
	}

	dateStr := req.Header.Get("Date")
	if dateStr == "" {
		return "", ErrSignatureMissing
	}
	reqTime, err := http.ParseTime(dateStr)
	if err != nil {
		return "", fmt.Errorf("%w: invalid Date header %q", ErrSignatureMalformed, dateStr)
	}
	if skew := time.Since(reqTime); skew > MaxClockSkew || skew < -MaxClockSkew {
		return "", fmt.Errorf("%w: %v from server time", ErrClockSkew, skew.Round(time.Second))
	}

	if err := verifyDigest(body, req.Header.Get("Digest")); err != nil {
		return "", err
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	keyID := verifier.KeyId()
	if keyID == "" {
		return "", ErrSignatureMissing
	}

	pubKey, err := resolve(ctx, keyID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return keyID, nil
}

// verifyDigest recomputes the SHA-256 digest of body and compares it with
// the Digest header when present (§4.C: "On Digest header present:
// recompute and require byte equality").
func verifyDigest(body []byte, digestHeader string) error {
	if digestHeader == "" {
		return nil
	}
	const prefix = "SHA-256="
	if !strings.HasPrefix(digestHeader, prefix) {
		return nil // unknown algorithm: forward-compatible, not our problem to reject
	}
	sum := sha256.Sum256(body)
	got := base64.StdEncoding.EncodeToString(sum[:])
	want := digestHeader[len(prefix):]
	if !bytes.Equal([]byte(got), []byte(want)) {
		return ErrDigestMismatch
	}
	return nil
}

