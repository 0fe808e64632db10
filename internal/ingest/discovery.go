package ingest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mastodon-ml/relay/internal/activitypub"
	"github.com/mastodon-ml/relay/internal/store"
)

const activityJSONType = "application/activity+json"

// Discovery serves the relay's own actor document and the WebFinger /
// NodeInfo discovery endpoints named in §6.
type Discovery struct {
	Domain string
	Keys   *activitypub.KeyPair
}

func NewDiscovery(domain string, keys *activitypub.KeyPair) *Discovery {
	return &Discovery{Domain: domain, Keys: keys}
}

func (d *Discovery) ServeActor(w http.ResponseWriter, r *http.Request) {
	actor := activitypub.RelayActor(d.Domain, d.Keys)
	writeActivityJSON(w, activitypub.WithContext(actor))
}

func (d *Discovery) ServeWebFinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, `{"error":"missing resource"}`, http.StatusBadRequest)
		return
	}
	acct := strings.TrimPrefix(resource, "acct:")
	parts := strings.SplitN(acct, "@", 2)
	if len(parts) != 2 || parts[1] != d.Domain {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	wf := activitypub.RelayWebFinger(d.Domain)
	w.Header().Set("Content-Type", "application/jrd+json")
	writeJSON(w, wf)
}

func (d *Discovery) ServeWellKnownNodeInfo(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"links": []map[string]string{
			{"rel": "http://nodeinfo.diaspora.software/ns/schema/2.0", "href": "https://" + d.Domain + "/nodeinfo/2.0.json"},
		},
	}
	writeJSON(w, doc)
}

func (d *Discovery) ServeNodeInfo(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inboxes, err := st.ListSubscribedInboxes(r.Context())
		total := 0
		if err == nil {
			total = len(inboxes)
		}
		ni := activitypub.NodeInfo{
			Version:   "2.0",
			Protocols: []string{"activitypub"},
			Software: activitypub.NodeInfoSoftware{
				Name:    "activityrelay",
				Version: "1.0.0",
			},
			Usage: activitypub.NodeInfoUsage{
				Users: activitypub.NodeInfoUsers{Total: total},
			},
			OpenRegistrations: false,
		}
		writeJSON(w, ni)
	}
}

func writeActivityJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", activityJSONType)
	writeJSONBody(w, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
