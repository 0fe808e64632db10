// Package fanout is the outbound delivery engine (§4.G): a bounded queue
// of (job, recipient) pairs drained by a fixed worker pool, each delivery
// signed with the relay's key, retried with exponential backoff, and
// dropped or marked failed according to the destination's response.
package fanout

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mastodon-ml/relay/internal/httpsig"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/relayerr"
	"github.com/mastodon-ml/relay/internal/store"
)

// queueCapacity is the bounded queue size named in §4.G ("10k pending
// pairs").
const queueCapacity = 10_000

// enqueueTimeout is how long Enqueue blocks on a full queue before
// returning Backpressure (§4.G / §5).
const enqueueTimeout = 30 * time.Second

// domainRateLimit smooths bursts toward one destination host beyond the
// attempt backoff — a supplemented concern (SPEC_FULL §4.G), not present
// in spec.md's literal retry rule.
const (
	domainRateLimitQPS   = 2
	domainRateLimitBurst = 5
)

type Engine struct {
	store   *store.Store
	policy  *policy.Engine
	keyID   string
	key     *rsa.PrivateKey
	http    *http.Client
	queue   chan Delivery
	workers int

	limiters sync.Map // domain -> *rate.Limiter
	miss404  sync.Map // domain -> *int (consecutive 404 count)
	wg       sync.WaitGroup
}

func New(st *store.Store, pol *policy.Engine, keyID string, key *rsa.PrivateKey, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		store:   st,
		policy:  pol,
		keyID:   keyID,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
		queue:   make(chan Delivery, queueCapacity),
		workers: workers,
	}
}

// Start launches the fixed worker pool (§5: "a fixed pool (workers config,
// default CPU count) of independent delivery workers consuming from one
// shared bounded queue").
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Wait blocks until every worker has exited (supervisor shutdown).
func (e *Engine) Wait() { e.wg.Wait() }

// QueueForTest drains and returns every pending Delivery currently buffered
// in the queue, without starting workers. For use by tests that assert on
// fan-out targets (testable properties 5 and 6) rather than driving real
// HTTP delivery.
func (e *Engine) QueueForTest() []Delivery {
	var out []Delivery
	for {
		select {
		case d := <-e.queue:
			out = append(out, d)
		default:
			return out
		}
	}
}

// Enqueue fans an activity out to every eligible subscriber. It computes
// recipients fresh (current policy snapshot) and pushes one Delivery per
// recipient; if the queue stays full for enqueueTimeout it returns a
// relayerr.KindBackpressure error (§7).
func (e *Engine) Enqueue(ctx context.Context, activityJSON []byte, originDomain string) (int, error) {
	targets, err := recipients(ctx, e.store, e.policy, originDomain)
	if err != nil {
		return 0, fmt.Errorf("fanout: compute recipients: %w", err)
	}

	jobID := uuid.New()
	queued := 0
	for _, inb := range targets {
		d := Delivery{
			JobID:           jobID,
			ActivityJSON:    activityJSON,
			OriginDomain:    originDomain,
			RecipientDomain: inb.Domain,
			RecipientInbox:  inb.InboxURL,
			Attempt:         0,
			NextDue:         time.Now(),
		}
		if err := e.push(ctx, d); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// EnqueueOne pushes a single ad-hoc delivery (Accept/Reject/Follow
// handshakes that target exactly one inbox, §4.F).
func (e *Engine) EnqueueOne(ctx context.Context, activityJSON []byte, recipientDomain, recipientInbox string) error {
	return e.push(ctx, Delivery{
		JobID:           uuid.New(),
		ActivityJSON:    activityJSON,
		RecipientDomain: recipientDomain,
		RecipientInbox:  recipientInbox,
		NextDue:         time.Now(),
	})
}

func (e *Engine) push(ctx context.Context, d Delivery) error {
	select {
	case e.queue <- d:
		return nil
	default:
	}
	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case e.queue <- d:
		return nil
	case <-timer.C:
		return relayerr.New(relayerr.KindBackpressure, "delivery queue full")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-e.queue:
			e.deliverWhenDue(ctx, d)
		}
	}
}

// deliverWhenDue waits for backoff delays without blocking other workers:
// if d isn't due yet, it schedules a re-push and returns immediately
// rather than sleeping on this worker goroutine.
func (e *Engine) deliverWhenDue(ctx context.Context, d Delivery) {
	if wait := time.Until(d.NextDue); wait > 0 {
		go func() {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-t.C:
				_ = e.push(ctx, d)
			case <-ctx.Done():
			}
		}()
		return
	}
	e.deliver(ctx, d)
}

func (e *Engine) deliver(ctx context.Context, d Delivery) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	if err := e.policy.Allowed(ctx, d.RecipientDomain, nil); err != nil {
		slog.Debug("delivery dropped: policy denied since enqueue", "domain", d.RecipientDomain, "job", d.JobID)
		return
	}

	e.limiterFor(d.RecipientDomain).Wait(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.RecipientInbox, bytes.NewReader(d.ActivityJSON))
	if err != nil {
		slog.Warn("delivery build request failed", "inbox", d.RecipientInbox, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("User-Agent", "activityrelay/1.0")

	if err := httpsig.Sign(req, e.keyID, e.key, d.ActivityJSON); err != nil {
		slog.Error("delivery signing failed", "inbox", d.RecipientInbox, "error", err)
		return
	}

	resp, err := e.http.Do(req)
	if err != nil {
		e.onTransientFailure(ctx, d)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.miss404.Delete(d.RecipientDomain)
		_ = e.store.RecordDeliverySuccess(ctx, d.RecipientDomain)
	case resp.StatusCode == http.StatusGone:
		_ = e.store.RecordDeliveryFailure(ctx, d.RecipientDomain, true)
		slog.Info("destination gone, marking inbox failed", "domain", d.RecipientDomain)
	case resp.StatusCode == http.StatusNotFound:
		e.on404(ctx, d)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		e.onTransientFailure(ctx, d)
	default:
		// Other 4xx: permanent rejection of this one delivery, not a strike
		// against the whole inbox.
		slog.Debug("delivery rejected", "inbox", d.RecipientInbox, "status", resp.StatusCode)
	}
}

func (e *Engine) on404(ctx context.Context, d Delivery) {
	v, _ := e.miss404.LoadOrStore(d.RecipientDomain, new(int))
	counter := v.(*int)
	*counter++
	if *counter >= 3 {
		_ = e.store.RecordDeliveryFailure(ctx, d.RecipientDomain, true)
		e.miss404.Delete(d.RecipientDomain)
		slog.Info("three consecutive 404s, marking inbox failed", "domain", d.RecipientDomain)
		return
	}
	e.onTransientFailure(ctx, d)
}

func (e *Engine) onTransientFailure(ctx context.Context, d Delivery) {
	_ = e.store.RecordDeliveryFailure(ctx, d.RecipientDomain, false)

	d.Attempt++
	if d.Attempt >= maxAttempts {
		slog.Info("delivery abandoned after max attempts", "domain", d.RecipientDomain, "job", d.JobID)
		return
	}
	d.NextDue = time.Now().Add(backoffSeconds(d.Attempt - 1))
	go func() {
		_ = e.push(ctx, d)
	}()
}

func (e *Engine) limiterFor(domain string) *rate.Limiter {
	if v, ok := e.limiters.Load(domain); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(domainRateLimitQPS), domainRateLimitBurst)
	actual, _ := e.limiters.LoadOrStore(domain, l)
	return actual.(*rate.Limiter)
}
