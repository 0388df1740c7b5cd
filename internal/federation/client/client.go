// Package client implements outbound federation calls to known peers: probe
// on add, browse a peer's library, pull a single item, replicate a whole
// library, gossip-resolve a stale peer URL, and connection-string encode/decode.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/animedb/animedb-node/internal/httpclient"
	"github.com/animedb/animedb-node/internal/metrics"
	"github.com/animedb/animedb-node/internal/organizer"
	"github.com/animedb/animedb-node/internal/store"
)

// Client drives all outbound federation HTTP calls.
type Client struct {
	store        *store.Store
	downloadRoot string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // per-peer-host outbound pacing
}

// New returns a Client backed by s, writing pulled files under downloadRoot.
func New(s *store.Store, downloadRoot string) *Client {
	return &Client{
		store:        s,
		downloadRoot: downloadRoot,
		limiters:     make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		// 5 req/s, burst 10, per peer host — enough for control calls and
		// chunked stream reads without a single noisy peer starving others.
		l = rate.NewLimiter(rate.Limit(5), 10)
		c.limiters[host] = l
	}
	return l
}

// LibraryResponse mirrors the federation server's GET /federation/library body.
type LibraryResponse struct {
	InstanceID   string        `json:"instanceId"`
	InstanceName string        `json:"instanceName"`
	Items        []LibraryItem `json:"items"`
}

// LibraryItem is one entry of a peer's exposed library.
type LibraryItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Season    *int   `json:"season,omitempty"`
	Episode   *int   `json:"episode,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// ErrNotAnimeDBInstance is returned by Probe when the target doesn't speak
// the federation protocol.
var ErrNotAnimeDBInstance = fmt.Errorf("not an AnimeDB instance")

// ErrInvalidKey is returned by Probe on a 401.
var ErrInvalidKey = fmt.Errorf("invalid key")

// Probe validates a candidate peer before it is persisted, returning its
// instanceId on success.
func (c *Client) Probe(ctx context.Context, baseURL, apiKey string) (string, error) {
	resp, err := c.getLibrary(ctx, baseURL, apiKey)
	if err != nil {
		return "", err
	}
	if resp.InstanceName == "" {
		return "", ErrNotAnimeDBInstance
	}
	return resp.InstanceID, nil
}

// BrowseLibrary proxies a peer's /federation/library verbatim.
func (c *Client) BrowseLibrary(ctx context.Context, peer *store.Peer) (*LibraryResponse, error) {
	return c.getLibrary(ctx, peer.URL, peer.APIKey)
}

func (c *Client) getLibrary(ctx context.Context, baseURL, apiKey string) (*LibraryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/federation/library", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", apiKey)

	if err := c.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := httpclient.DoWithRetry(ctx, httpclient.Default(), req, httpclient.PeerRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("peer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidKey
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	var out LibraryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode library response: %w", err)
	}
	return &out, nil
}

// ErrAlreadyPresent is returned by PullItem when the local row already exists.
var ErrAlreadyPresent = fmt.Errorf("item already present locally")

// ErrRemoteItemNotFound is returned by PullItem when remoteID isn't in the peer's library.
var ErrRemoteItemNotFound = fmt.Errorf("remote item not found")

// PullItem starts a background transfer of remoteID from peer and returns the
// new local Download row immediately (the caller responds 202 with it).
// autoMove/libraryID, if libraryID is non-empty, trigger a Media Organizer
// move after the transfer completes.
func (c *Client) PullItem(ctx context.Context, peer *store.Peer, remoteID string, autoMove bool, libraryID string) (*store.Download, error) {
	if existing, err := c.store.ListDownloads(store.StatusCompleted); err == nil {
		for _, d := range existing {
			if d.ID == remoteID {
				return nil, ErrAlreadyPresent
			}
		}
	}

	lib, err := c.BrowseLibrary(ctx, peer)
	if err != nil {
		return nil, err
	}
	var item *LibraryItem
	for i := range lib.Items {
		if lib.Items[i].ID == remoteID {
			item = &lib.Items[i]
			break
		}
	}
	if item == nil {
		return nil, ErrRemoteItemNotFound
	}

	d, err := c.store.CreateDownload(
		fmt.Sprintf("federation://%s/%s", strings.TrimRight(peer.URL, "/"), remoteID),
		item.Title, store.Category(item.Category), item.Season, item.Episode)
	if err != nil {
		return nil, err
	}
	if err := c.store.UpdateDownloadProgress(d.ID, store.StatusDownloading, 0); err != nil {
		return nil, err
	}

	go c.transfer(context.Background(), peer, remoteID, d.ID, autoMove, libraryID)

	return d, nil
}

// transfer streams remoteID from peer into localID's download directory and
// finalizes the Store row. Run as a detached goroutine from PullItem and from
// the per-peer replicate loop.
func (c *Client) transfer(ctx context.Context, peer *store.Peer, remoteID, localID string, autoMove bool, libraryID string) {
	if err := c.streamToDisk(ctx, peer, remoteID, localID); err != nil {
		_ = c.store.FailDownload(localID, err.Error())
		return
	}

	if autoMove && libraryID != "" {
		d, err := c.store.GetDownload(localID)
		if err != nil {
			return
		}
		lib, err := c.store.GetLibrary(libraryID)
		if err != nil {
			return
		}
		newPath, err := organizer.Move(d, lib)
		if err != nil {
			return
		}
		_ = c.store.CompleteDownload(localID, newPath)
		_ = c.store.SetDownloadLibrary(localID, libraryID)
	}
}

func (c *Client) streamToDisk(ctx context.Context, peer *store.Peer, remoteID, localID string) error {
	url := strings.TrimRight(peer.URL, "/") + "/federation/download/" + remoteID + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", peer.APIKey)

	if err := c.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return err
	}
	resp, err := httpclient.ForStreaming().Do(req)
	if err != nil {
		return fmt.Errorf("stream transport error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d for stream", resp.StatusCode)
	}

	filename := filenameFromContentDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = localID + ".mkv"
	}

	jobDir := c.downloadRoot + "/" + localID
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return err
	}
	destPath := jobDir + "/" + filename

	total := int64(-1)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			total = n
		}
	}

	if err := writeWithProgress(destPath, resp.Body, total, func(percent int) {
		_ = c.store.UpdateDownloadProgress(localID, store.StatusDownloading, percent)
	}, func(n int) {
		metrics.FederationPullBytesTotal.WithLabelValues(peer.Name).Add(float64(n))
	}); err != nil {
		return err
	}

	return c.store.CompleteDownload(localID, destPath)
}

func filenameFromContentDisposition(header string) string {
	const marker = `filename="`
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// ReplicateResult summarizes a replicate invocation's synchronous response.
type ReplicateResult struct {
	Total   int `json:"total"`
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}

// ReplicateLibrary enqueues every not-yet-present item from peer's library and
// starts a dedicated background loop to process them sequentially, isolated
// from the main Queue and from other concurrent replicate invocations.
func (c *Client) ReplicateLibrary(ctx context.Context, peer *store.Peer, libraryID string) (*ReplicateResult, error) {
	lib, err := c.BrowseLibrary(ctx, peer)
	if err != nil {
		return nil, err
	}

	existingURLs := make(map[string]bool)
	all, err := c.store.ListDownloads("")
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.Status == store.StatusQueued || d.Status == store.StatusDownloading || d.Status == store.StatusCompleted {
			existingURLs[d.URL] = true
		}
	}

	var queuedRows []*store.Download
	result := &ReplicateResult{Total: len(lib.Items)}
	peerPrefix := strings.TrimRight(peer.URL, "/")
	for _, item := range lib.Items {
		url := fmt.Sprintf("federation://%s/%s", peerPrefix, item.ID)
		if existingURLs[url] {
			result.Skipped++
			continue
		}
		d, err := c.store.CreateDownload(url, item.Title, store.Category(item.Category), item.Season, item.Episode)
		if err != nil {
			return nil, err
		}
		queuedRows = append(queuedRows, d)
		result.Queued++
	}

	go c.runReplicateLoop(context.Background(), peer, queuedRows, libraryID)

	return result, nil
}

// runReplicateLoop processes previously-queued federation rows sequentially.
// Failures are isolated per item; the loop continues to the next row.
func (c *Client) runReplicateLoop(ctx context.Context, peer *store.Peer, rows []*store.Download, libraryID string) {
	for _, d := range rows {
		remoteID := remoteIDFromFederationURL(d.URL)
		if remoteID == "" {
			continue
		}
		if err := c.store.UpdateDownloadProgress(d.ID, store.StatusDownloading, 0); err != nil {
			continue
		}
		c.transfer(ctx, peer, remoteID, d.ID, libraryID != "", libraryID)
	}
}

func remoteIDFromFederationURL(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return ""
	}
	return url[idx+1:]
}

// ErrPeerMissingInstanceID / ErrCouldNotResolve are returned by ResolveGossip.
var (
	ErrPeerUnknown           = fmt.Errorf("peer not found")
	ErrPeerMissingInstanceID = fmt.Errorf("peer has no instance id")
	ErrCouldNotResolve       = fmt.Errorf("could not resolve")
)

// ResolveResult is returned by ResolveGossip on success.
type ResolveResult struct {
	Resolved bool        `json:"resolved"`
	Via      string      `json:"via"`
	Peer     *store.Peer `json:"peer"`
}

// ResolveGossip asks every other known peer whether they have a fresher URL
// for target, and adopts the first 2xx answer.
func (c *Client) ResolveGossip(ctx context.Context, target *store.Peer) (*ResolveResult, error) {
	if target.InstanceID == nil || *target.InstanceID == "" {
		return nil, ErrPeerMissingInstanceID
	}

	others, err := c.store.ListPeers()
	if err != nil {
		return nil, err
	}
	for _, other := range others {
		if other.ID == target.ID {
			continue
		}
		url, ok := c.resolveVia(ctx, other, *target.InstanceID)
		if !ok {
			continue
		}
		if err := c.store.UpdatePeerURL(target.ID, url); err != nil {
			return nil, err
		}
		if err := c.store.TouchPeerLastSeen(target.ID); err != nil {
			return nil, err
		}
		updated, err := c.store.GetPeer(target.ID)
		if err != nil {
			return nil, err
		}
		return &ResolveResult{Resolved: true, Via: other.Name, Peer: updated}, nil
	}
	return nil, ErrCouldNotResolve
}

func (c *Client) resolveVia(ctx context.Context, other *store.Peer, instanceID string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reqURL := strings.TrimRight(other.URL, "/") + "/federation/resolve/" + instanceID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("X-Api-Key", other.APIKey)

	resp, err := httpclient.Default().Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", false
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.URL == "" {
		return "", false
	}
	return body.URL, true
}

// ConnectionString is the decoded payload of an "adb-connect:" string.
type ConnectionString struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

const connectPrefix = "adb-connect:"

// DecodeConnectionString parses "[adb-connect:]base64(json)" and validates
// all three fields are non-empty. The URL's trailing slashes are stripped.
func DecodeConnectionString(s string) (*ConnectionString, error) {
	s = strings.TrimPrefix(s, connectPrefix)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string encoding: %w", err)
	}
	var cs ConnectionString
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("invalid connection string payload: %w", err)
	}
	if cs.URL == "" || cs.Name == "" || cs.Key == "" {
		return nil, fmt.Errorf("connection string missing required field")
	}
	cs.URL = strings.TrimRight(cs.URL, "/")
	return &cs, nil
}

// EncodeConnectionString is the inverse of DecodeConnectionString, used by
// the "connect/mine" endpoint to hand a caller our own invite string.
func EncodeConnectionString(cs ConnectionString) (string, error) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return "", err
	}
	return connectPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

func writeWithProgress(destPath string, body io.Reader, total int64, onProgress func(percent int), onBytes func(n int)) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	var received int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			received += int64(n)
			if onBytes != nil {
				onBytes(n)
			}
			if total > 0 {
				onProgress(int(received * 100 / total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return nil
}
