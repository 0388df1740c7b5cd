// Package announce notifies every known peer of our reachable URL on startup
// and whenever the NAT/UPnP Manager reports the external IP changed.
package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/animedb/animedb-node/internal/httpclient"
	"github.com/animedb/animedb-node/internal/store"
)

// Dispatcher POSTs {instanceId, url} to every peer's /federation/announce.
// Failures are ignored: peers self-heal via gossip resolve on their next contact.
type Dispatcher struct {
	store      *store.Store
	instanceID string
}

// New returns a Dispatcher reporting instanceID as our identity to peers.
func New(s *store.Store, instanceID string) *Dispatcher {
	return &Dispatcher{store: s, instanceID: instanceID}
}

type announceBody struct {
	InstanceID string `json:"instanceId"`
	URL        string `json:"url"`
}

// Announce fires {instanceId, externalURL} at every known peer. Intended to
// run on startup (once an external URL exists) and as the NAT/UPnP Manager's
// renew callback when the reported external IP changes.
func (d *Dispatcher) Announce(externalURL string) {
	peers, err := d.store.ListPeers()
	if err != nil {
		log.Printf("announce: list peers: %v", err)
		return
	}

	payload, err := json.Marshal(announceBody{InstanceID: d.instanceID, URL: externalURL})
	if err != nil {
		log.Printf("announce: marshal body: %v", err)
		return
	}

	for _, p := range peers {
		go d.announceOne(p, payload)
	}
}

func (d *Dispatcher) announceOne(p *store.Peer, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := strings.TrimRight(p.URL, "/") + "/federation/announce"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.APIKey)

	resp, err := httpclient.Default().Do(req)
	if err != nil {
		log.Printf("announce: %s unreachable (ignored): %v", p.Name, err)
		return
	}
	defer resp.Body.Close()
}
