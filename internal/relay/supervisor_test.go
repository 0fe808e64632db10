package relay_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mastodon-ml/relay/internal/config"
	"github.com/mastodon-ml/relay/internal/relay"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	body := "domain: relay.test\nlisten: 127.0.0.1\nport: 18181\nworkers: 1\ndatabase_type: sqlite\nsqlite_path: relay.db\ncache_type: database\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestSupervisorStartsAndStopsWithinDrainDeadline exercises the full
// lifecycle: config load, store open/migrate, keypair generation, HTTP
// listener bind, and a clean shutdown once ctx is cancelled (§4.I).
func TestSupervisorStartsAndStopsWithinDrainDeadline(t *testing.T) {
	cfg, err := config.Load(writeTestConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	sup, err := relay.New(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// Give the listener goroutine a moment to bind, then confirm the
	// healthcheck route responds before triggering shutdown.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18181/api/healthcheck")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop within the drain deadline")
	}
}
