// Package apclient performs outbound ActivityPub discovery requests: actor
// documents, nodeinfo, WebFinger resolution (§4.D). Every exported fetch
// except ResolveKey consults the policy engine before touching the network;
// all of them classify network failures as transient or permanent.
package apclient

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/kv"
	"github.com/mastodon-ml/relay/internal/policy"
)

// ErrGone is returned when a remote resource responds 410 Gone.
var ErrGone = errors.New("apclient: resource gone")

// ErrTransient wraps network errors the caller may retry (timeouts, 5xx,
// connection reset). ErrPermanent wraps 4xx (except 408/429) — §4.D.
var (
	ErrTransient = errors.New("apclient: transient error")
	ErrPermanent = errors.New("apclient: permanent error")
)

const userAgent = "activityrelay/1.0"

type Client struct {
	http   *http.Client
	cache  kv.Cache
	policy *policy.Engine
}

func New(cache kv.Cache, pol *policy.Engine) *Client {
	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
		policy: pol,
	}
}

// FetchActor fetches and parses the actor document at actorURL, honoring
// the 6h actor cache (§4.D) and the policy gate on the actor's domain.
func (c *Client) FetchActor(ctx context.Context, actorURL string) (activitypub.Actor, error) {
	domain, err := hostOf(actorURL)
	if err != nil {
		return activitypub.Actor{}, err
	}
	if err := c.policy.Allowed(ctx, domain, nil); err != nil {
		return activitypub.Actor{}, err
	}
	return c.fetchActorCached(ctx, actorURL)
}

// ResolveKey returns the RSA public key for a keyId (an actor IRI fragment,
// e.g. "https://a.example/u/a#main-key") — wired directly as an
// internal/httpsig.KeyResolver. It deliberately does not consult the policy
// engine: signature verification (§4.C) runs before the policy gate (§4.F
// step 5), so a banned domain still gets a definitive SignatureError or
// Blocked response rather than the wrong one of the two.
func (c *Client) ResolveKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	actorURL := strings.SplitN(keyID, "#", 2)[0]
	actor, err := c.fetchActorCached(ctx, actorURL)
	if err != nil {
		return nil, err
	}
	if actor.PublicKey == nil || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("apclient: actor %s has no public key", actorURL)
	}
	return parsePublicKeyPEM(actor.PublicKey.PublicKeyPem)
}

func (c *Client) fetchActorCached(ctx context.Context, actorURL string) (activitypub.Actor, error) {
	if v, ok, err := c.cache.Get(ctx, kv.NamespaceActor, actorURL); err == nil && ok && kv.Fresh(kv.NamespaceActor, v) {
		var actor activitypub.Actor
		if err := v.JSON(&actor); err == nil {
			return actor, nil
		}
	}

	body, err := c.get(ctx, actorURL, `application/activity+json, application/ld+json`)
	if err != nil {
		return activitypub.Actor{}, err
	}
	var actor activitypub.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return activitypub.Actor{}, fmt.Errorf("apclient: decode actor %s: %w", actorURL, err)
	}

	_ = kv.SetJSON(ctx, c.cache, kv.NamespaceActor, actorURL, actor)
	return actor, nil
}

// FetchNodeInfo resolves software name/version for domain via the
// well-known nodeinfo discovery chain, honoring the 1h cache (§4.D).
func (c *Client) FetchNodeInfo(ctx context.Context, domain string) (activitypub.NodeInfo, error) {
	if err := c.policy.Allowed(ctx, domain, nil); err != nil {
		return activitypub.NodeInfo{}, err
	}

	if v, ok, err := c.cache.Get(ctx, kv.NamespaceNodeinfo, domain); err == nil && ok && kv.Fresh(kv.NamespaceNodeinfo, v) {
		var ni activitypub.NodeInfo
		if err := v.JSON(&ni); err == nil {
			return ni, nil
		}
	}

	discoveryURL := "https://" + domain + "/.well-known/nodeinfo"
	body, err := c.get(ctx, discoveryURL, "application/json")
	if err != nil {
		return activitypub.NodeInfo{}, err
	}
	var discovery struct {
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &discovery); err != nil {
		return activitypub.NodeInfo{}, fmt.Errorf("apclient: decode nodeinfo discovery for %s: %w", domain, err)
	}

	var niURL string
	for _, l := range discovery.Links {
		if strings.Contains(l.Rel, "nodeinfo.2") {
			niURL = l.Href
			break
		}
	}
	if niURL == "" {
		return activitypub.NodeInfo{}, fmt.Errorf("%w: no nodeinfo 2.x link for %s", ErrPermanent, domain)
	}

	niBody, err := c.get(ctx, niURL, "application/json")
	if err != nil {
		return activitypub.NodeInfo{}, err
	}
	var ni activitypub.NodeInfo
	if err := json.Unmarshal(niBody, &ni); err != nil {
		return activitypub.NodeInfo{}, fmt.Errorf("apclient: decode nodeinfo for %s: %w", domain, err)
	}

	_ = kv.SetJSON(ctx, c.cache, kv.NamespaceNodeinfo, domain, ni)
	return ni, nil
}

// WebFingerResolve resolves "user@domain" to an actor IRI.
func (c *Client) WebFingerResolve(ctx context.Context, handle string) (string, error) {
	parts := strings.SplitN(handle, "@", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid handle %q", ErrPermanent, handle)
	}
	domain := parts[1]
	if err := c.policy.Allowed(ctx, domain, nil); err != nil {
		return "", err
	}

	wfURL := "https://" + domain + "/.well-known/webfinger?resource=acct:" + handle
	body, err := c.get(ctx, wfURL, "application/jrd+json, application/json")
	if err != nil {
		return "", err
	}
	var wf activitypub.WebFingerResponse
	if err := json.Unmarshal(body, &wf); err != nil {
		return "", fmt.Errorf("apclient: decode webfinger for %s: %w", handle, err)
	}
	for _, l := range wf.Links {
		if l.Rel == "self" {
			return l.Href, nil
		}
	}
	return "", fmt.Errorf("%w: no self link in webfinger response for %s", ErrPermanent, handle)
}

// ResolveInbox returns the inbox IRI to deliver to for actorURL, preferring
// the shared inbox when the actor advertises one (fewer TCP connections on
// fan-out).
func (c *Client) ResolveInbox(ctx context.Context, actorURL string) (string, error) {
	actor, err := c.FetchActor(ctx, actorURL)
	if err != nil {
		return "", err
	}
	if actor.Endpoints != nil && actor.Endpoints.SharedInbox != "" {
		return actor.Endpoints.SharedInbox, nil
	}
	if actor.Inbox == "" {
		return "", fmt.Errorf("%w: actor %s has no inbox", ErrPermanent, actorURL)
	}
	return actor.Inbox, nil
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("apclient: build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body from %s: %v", ErrTransient, url, err)
	}

	switch {
	case resp.StatusCode == http.StatusGone:
		return nil, ErrGone
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransient, url, resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransient, url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrPermanent, url, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransient, url, resp.StatusCode)
	}
	return body, nil
}

func hostOf(rawURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("apclient: invalid URL %q: %w", rawURL, err)
	}
	return req.URL.Hostname(), nil
}

func parsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("apclient: invalid PEM public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apclient: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("apclient: key is not RSA")
	}
	return rsaPub, nil
}
