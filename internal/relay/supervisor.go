// Package relay is the process supervisor (§4.I): it wires config, store,
// cache, the fan-out engine, and the HTTP listener together, and owns
// graceful shutdown. It generalizes the teacher's cmd/klistr/main.go
// wiring sequence into an explicit, testable struct.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/api"
	"github.com/mastodon-ml/relay/internal/apclient"
	"github.com/mastodon-ml/relay/internal/config"
	"github.com/mastodon-ml/relay/internal/fanout"
	"github.com/mastodon-ml/relay/internal/ingest"
	"github.com/mastodon-ml/relay/internal/kv"
	"github.com/mastodon-ml/relay/internal/policy"
	"github.com/mastodon-ml/relay/internal/store"
)

// shutdownDrain is the deadline for in-flight HTTP handlers to finish once
// shutdown begins (§4.I).
const shutdownDrain = 20 * time.Second

// cacheSweepInterval and staleInboxInterval drive the supervisor's two
// background maintenance loops.
const (
	cacheSweepInterval  = 10 * time.Minute
	staleInboxInterval  = time.Hour
	staleInboxThreshold = 7 * 24 * time.Hour // §4.G: ">7 days continuous failure"
)

// Supervisor owns every long-lived component's lifecycle for one relay
// process.
type Supervisor struct {
	cfg *config.Config

	Store  *store.Store
	Cache  kv.Cache
	Policy *policy.Engine
	Client *apclient.Client
	Fanout *fanout.Engine
	Keys   *activitypub.KeyPair
}

// New assembles a Supervisor from a loaded config, opening the store and
// cache but not yet starting any goroutines or listeners — call Run to do
// that.
func New(ctx context.Context, cfg *config.Config) (*Supervisor, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL(), 2*cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("relay: open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("relay: migrate store: %w", err)
	}

	cache, err := kv.New(cfg, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("relay: open cache: %w", err)
	}

	pol := policy.NewEngine(st)
	client := apclient.New(cache, pol)

	relayActorID := "https://" + cfg.Domain + "/actor"
	keys, err := activitypub.LoadOrGenerateKeyPair(ctx, st, relayActorID+"#main-key")
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("relay: load keys: %w", err)
	}

	fe := fanout.New(st, pol, keys.ID, keys.Private, cfg.Workers)

	return &Supervisor{
		cfg:    cfg,
		Store:  st,
		Cache:  cache,
		Policy: pol,
		Client: client,
		Fanout: fe,
		Keys:   keys,
	}, nil
}

// Run starts the fan-out worker pool, the background maintenance loops,
// and the HTTP listener, blocking until ctx is cancelled (§4.I: "load
// config -> open store -> migrate -> start cache -> start fan-out workers
// -> bind HTTP listener").
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.Store.Close()
	defer s.Cache.Close()

	s.Fanout.Start(ctx)
	go s.sweepCache(ctx)
	go s.pruneStaleInboxes(ctx)

	relayActorID := "https://" + s.cfg.Domain + "/actor"
	h := ingest.NewHandler(s.Store, s.Policy, s.Client, s.Fanout, relayActorID)
	disc := ingest.NewDiscovery(s.cfg.Domain, s.Keys)
	apiHandler := api.NewHandler(s.Store, s.Client, s.Fanout, relayActorID)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	ingest.Mount(r, h, disc, s.Store)
	api.Mount(r, apiHandler)

	srv := &http.Server{
		Addr:         s.cfg.ListenAddr(),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP listener", "addr", s.cfg.ListenAddr(), "domain", s.cfg.Domain)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("relay: HTTP listener: %w", err)
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Error("relay: HTTP shutdown error", "error", err)
	}
	s.Fanout.Wait()
	return nil
}

func (s *Supervisor) sweepCache(ctx context.Context) {
	sweeper, ok := s.Cache.(kv.Sweeper)
	if !ok {
		return // backend enforces TTL natively (e.g. Redis EXPIRE)
	}
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	namespaces := []struct {
		ns     string
		maxAge time.Duration
	}{
		{kv.NamespaceNodeinfo, kv.TTLNodeinfo},
		{kv.NamespaceActor, kv.TTLActor},
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, n := range namespaces {
				count, err := sweeper.Sweep(ctx, n.ns, n.maxAge)
				if err != nil {
					slog.Warn("cache sweep failed", "namespace", n.ns, "error", err)
					continue
				}
				if count > 0 {
					slog.Debug("cache sweep removed expired entries", "namespace", n.ns, "count", count)
				}
			}
		}
	}
}

func (s *Supervisor) pruneStaleInboxes(ctx context.Context) {
	ticker := time.NewTicker(staleInboxInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Store.PruneStaleFailedInboxes(ctx, staleInboxThreshold)
			if err != nil {
				slog.Warn("prune stale inboxes failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("pruned stale failed inboxes", "count", n)
			}
		}
	}
}
