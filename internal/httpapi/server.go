// Package httpapi wires every HTTP endpoint described in the node's
// interface contract onto a gorilla/mux router: session-protected CRUD over
// downloads/libraries/keys/peers, the UPnP-backed networking controls, the
// self-update flow, and the open /config and /metrics endpoints. Federation
// endpoints are mounted separately behind the API-key gate.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/animedb/animedb-node/internal/apikey"
	"github.com/animedb/animedb-node/internal/config"
	fedclient "github.com/animedb/animedb-node/internal/federation/client"
	fedserver "github.com/animedb/animedb-node/internal/federation/server"
	"github.com/animedb/animedb-node/internal/metrics"
	"github.com/animedb/animedb-node/internal/queue"
	"github.com/animedb/animedb-node/internal/session"
	"github.com/animedb/animedb-node/internal/store"
	"github.com/animedb/animedb-node/internal/update"
	"github.com/animedb/animedb-node/internal/upnp"
)

// Server holds every component the HTTP surface dispatches into.
type Server struct {
	store    *store.Store
	cfg      *config.Config
	queue    *queue.Queue
	fedCli   *fedclient.Client
	fedSrv   *fedserver.Server
	nat      *upnp.Manager
	updater  *update.Manager
	instance string
	exit     func(code int)
}

// New returns a Server. exit is called by POST /system/update after a
// successful fetch-and-swap; passing os.Exit wires it to the real process.
func New(s *store.Store, cfg *config.Config, q *queue.Queue, fc *fedclient.Client, fs *fedserver.Server, nat *upnp.Manager, updater *update.Manager, instanceID string, exit func(code int)) *Server {
	return &Server{store: s, cfg: cfg, queue: q, fedCli: fc, fedSrv: fs, nat: nat, updater: updater, instance: instanceID, exit: exit}
}

// Router builds the complete mux.Router for the node.
func (srv *Server) Router() http.Handler {
	r := mux.NewRouter()

	sessionMW := session.Middleware(srv.store, srv.cfg.AuthDisabled)

	api := r.PathPrefix("/api").Subrouter()
	protected := api.NewRoute().Subrouter()
	protected.Use(sessionMW)

	protected.HandleFunc("/downloads", srv.listDownloads).Methods(http.MethodGet)
	protected.HandleFunc("/downloads", srv.createDownload).Methods(http.MethodPost)
	protected.HandleFunc("/downloads/{id}", srv.getDownload).Methods(http.MethodGet)
	protected.HandleFunc("/downloads/{id}", srv.patchDownload).Methods(http.MethodPatch)
	protected.HandleFunc("/downloads/{id}", srv.deleteDownload).Methods(http.MethodDelete)
	protected.HandleFunc("/downloads/{id}/cancel", srv.cancelDownload).Methods(http.MethodPost)
	protected.HandleFunc("/downloads/{id}/move", srv.moveDownload).Methods(http.MethodPost)
	protected.HandleFunc("/downloads/{id}/unmove", srv.unmoveDownload).Methods(http.MethodPost)
	api.HandleFunc("/downloads/{id}/stream", srv.streamDownload).Methods(http.MethodGet)

	protected.HandleFunc("/libraries", srv.listLibraries).Methods(http.MethodGet)
	protected.HandleFunc("/libraries", srv.createLibrary).Methods(http.MethodPost)
	protected.HandleFunc("/libraries/scan", srv.scanLibraries).Methods(http.MethodGet)
	protected.HandleFunc("/libraries/{id}", srv.getLibrary).Methods(http.MethodGet)
	protected.HandleFunc("/libraries/{id}", srv.patchLibrary).Methods(http.MethodPatch)
	protected.HandleFunc("/libraries/{id}", srv.deleteLibrary).Methods(http.MethodDelete)

	protected.HandleFunc("/keys", srv.listKeys).Methods(http.MethodGet)
	protected.HandleFunc("/keys", srv.createKey).Methods(http.MethodPost)
	protected.HandleFunc("/keys/{id}", srv.deleteKey).Methods(http.MethodDelete)

	protected.HandleFunc("/peers", srv.listPeers).Methods(http.MethodGet)
	protected.HandleFunc("/peers", srv.createPeer).Methods(http.MethodPost)
	protected.HandleFunc("/peers/connect", srv.connectPeer).Methods(http.MethodPost)
	protected.HandleFunc("/peers/connect/mine", srv.myConnectionString).Methods(http.MethodGet)
	protected.HandleFunc("/peers/{id}", srv.deletePeer).Methods(http.MethodDelete)
	protected.HandleFunc("/peers/{id}/library", srv.browsePeerLibrary).Methods(http.MethodGet)
	protected.HandleFunc("/peers/{id}/pull/{rid}", srv.pullFromPeer).Methods(http.MethodPost)
	protected.HandleFunc("/peers/{id}/replicate", srv.replicateFromPeer).Methods(http.MethodPost)
	protected.HandleFunc("/peers/{id}/resolve", srv.resolvePeer).Methods(http.MethodPost)

	protected.HandleFunc("/networking", srv.getNetworking).Methods(http.MethodGet)
	protected.HandleFunc("/networking/external-url", srv.putExternalURL).Methods(http.MethodPut)
	protected.HandleFunc("/networking/upnp-retry", srv.retryUPnP).Methods(http.MethodPost)

	protected.HandleFunc("/system/update-check", srv.updateCheck).Methods(http.MethodGet)
	protected.HandleFunc("/system/update", srv.startUpdate).Methods(http.MethodPost)

	api.HandleFunc("/auth/login", srv.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", srv.logout).Methods(http.MethodPost)

	api.HandleFunc("/config", srv.getConfig).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	fed := r.PathPrefix("/federation").Subrouter()
	fed.Use(apikey.Gate(srv.store))
	fed.HandleFunc("/library", srv.fedSrv.Library).Methods(http.MethodGet)
	fed.HandleFunc("/download/{id}/stream", srv.fedSrv.Stream).Methods(http.MethodGet)
	fed.HandleFunc("/announce", srv.fedSrv.Announce).Methods(http.MethodPost)
	fed.HandleFunc("/resolve/{instanceId}", srv.fedSrv.Resolve).Methods(http.MethodGet)

	return r
}
