package httpapi

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/animedb/animedb-node/internal/config"
	"github.com/animedb/animedb-node/internal/downloader"
	fedclient "github.com/animedb/animedb-node/internal/federation/client"
	fedserver "github.com/animedb/animedb-node/internal/federation/server"
	"github.com/animedb/animedb-node/internal/queue"
	"github.com/animedb/animedb-node/internal/store"
	"github.com/animedb/animedb-node/internal/update"
	"github.com/animedb/animedb-node/internal/upnp"
)

// stubDownloader completes every job at once with an empty result; queue-level
// tests live in internal/queue, so this just satisfies the interface for server wiring.
type stubDownloader struct{}

func (stubDownloader) Download(ctx context.Context, jobID, url string, onProgress downloader.ProgressFunc) (*downloader.Result, error) {
	onProgress(0, "", "")
	return &downloader.Result{}, nil
}
func (stubDownloader) Cancel(jobID string) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "animedb.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		DownloadRoot: filepath.Join(dir, "downloads"),
		MediaRoot:    filepath.Join(dir, "media"),
		OutputFormat: "mkv",
		AuthDisabled: true,
		InstanceName: "test-instance",
		UPnPPort:     3000,
		BuildSHAFile: filepath.Join(dir, "build-sha.txt"),
	}

	q := queue.New(s, stubDownloader{})
	fc := fedclient.New(s, cfg.DownloadRoot)
	fs := fedserver.New(s, "test-instance-id", cfg.InstanceName)
	nat := upnp.New(cfg.UPnPPort, 0, "", nil)
	updater := update.New(dir, filepath.Join(dir, "backend"), filepath.Join(dir, "frontend"), "", cfg.BuildSHAFile)

	return New(s, cfg, q, fc, fs, nat, updater, "test-instance-id", func(code int) {})
}

func newTestServerWithRecorder(t *testing.T) (*Server, *httptest.ResponseRecorder) {
	return newTestServer(t), httptest.NewRecorder()
}
