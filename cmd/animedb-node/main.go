// Command animedb-node runs a single self-hosted AnimeDB node: the download
// queue, the federation client/server pair, the NAT/UPnP manager, the
// peer-sync scheduler, and the HTTP API that fronts all of it.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/animedb/animedb-node/internal/announce"
	"github.com/animedb/animedb-node/internal/config"
	"github.com/animedb/animedb-node/internal/downloader"
	fedclient "github.com/animedb/animedb-node/internal/federation/client"
	fedserver "github.com/animedb/animedb-node/internal/federation/server"
	"github.com/animedb/animedb-node/internal/httpapi"
	"github.com/animedb/animedb-node/internal/identity"
	"github.com/animedb/animedb-node/internal/peersync"
	"github.com/animedb/animedb-node/internal/queue"
	"github.com/animedb/animedb-node/internal/store"
	"github.com/animedb/animedb-node/internal/update"
	"github.com/animedb/animedb-node/internal/upnp"
)

const shutdownTimeout = 8 * time.Second

func main() {
	cfg := config.Load()

	updater := update.New(cfg.DataDir, cfg.BackendDir, cfg.FrontendDir, cfg.UpdateSourceURL, cfg.BuildSHAFile)
	outcome, err := updater.CheckRollback()
	if err != nil {
		log.Fatalf("update: rollback check: %v", err)
	}
	if outcome.RolledBack {
		log.Printf("update: previous build never reached listening state, restored prior version; exiting for supervisor restart")
		os.Exit(1)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer s.Close()

	if n, err := s.RecoverInFlightDownloads(); err != nil {
		log.Printf("queue: recover in-flight downloads: %v", err)
	} else if n > 0 {
		log.Printf("queue: requeued %d download(s) left downloading by an unclean shutdown", n)
	}

	instanceID, err := identity.Get(s)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	dl := downloader.New(cfg.DownloaderTool, cfg.OutputFormat, cfg.DownloadRoot)
	q := queue.New(s, dl)

	fedCli := fedclient.New(s, cfg.DownloadRoot)
	fedSrv := fedserver.New(s, instanceID, cfg.InstanceName)

	announcer := announce.New(s, instanceID)
	nat := upnp.New(cfg.UPnPPort, cfg.UPnPLeaseSecs, cfg.ExternalURL, announcer.Announce)

	sched := peersync.New(s, cfg.PeerSyncIntervalMinutes, func(ctx context.Context, peer *store.Peer, libraryID string) error {
		_, err := fedCli.ReplicateLibrary(ctx, peer, libraryID)
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.Run(ctx)

	nat.Start(ctx)
	if _, externalURL, _ := nat.State(); externalURL != "" {
		go announcer.Announce(externalURL)
	}

	sched.Start(ctx)
	defer sched.Stop()

	srv := httpapi.New(s, cfg, q, fedCli, fedSrv, nat, updater, instanceID, os.Exit)
	httpServer := &http.Server{Handler: srv.Router()}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		log.Fatalf("http: listen on port %d: %v", cfg.Port, err)
	}

	// The listener is bound; this boot has "reached listening state" and a
	// prior update is confirmed good.
	if err := updater.CleanupAfterSuccessfulUpdate(); err != nil {
		log.Printf("update: cleanup after successful start: %v", err)
	}

	go func() {
		log.Printf("animedb-node: listening on %s (instance %s)", ln.Addr(), instanceID)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("animedb-node: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	nat.Stop()
}
