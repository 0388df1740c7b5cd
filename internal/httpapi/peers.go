package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	fedclient "github.com/animedb/animedb-node/internal/federation/client"
)

func (srv *Server) listPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := srv.store.ListPeers()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

type createPeerRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

func (srv *Server) createPeer(w http.ResponseWriter, r *http.Request) {
	var req createPeerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	srv.addPeer(w, r.Context(), req.Name, req.URL, req.APIKey)
}

type connectPeerRequest struct {
	ConnectionString string `json:"connectionString"`
}

func (srv *Server) connectPeer(w http.ResponseWriter, r *http.Request) {
	var req connectPeerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cs, err := fedclient.DecodeConnectionString(req.ConnectionString)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid connection string")
		return
	}
	srv.addPeer(w, r.Context(), cs.Name, cs.URL, cs.Key)
}

func (srv *Server) addPeer(w http.ResponseWriter, ctx context.Context, name, url, apiKeyRaw string) {
	instanceID, err := srv.fedCli.Probe(ctx, url, apiKeyRaw)
	if err != nil {
		switch {
		case errors.Is(err, fedclient.ErrInvalidKey):
			writeError(w, http.StatusUnauthorized, "invalid key")
		case errors.Is(err, fedclient.ErrNotAnimeDBInstance):
			writeError(w, http.StatusBadRequest, "not an AnimeDB instance")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	peer, err := srv.store.CreatePeer(name, url, apiKeyRaw, false, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := srv.store.SetPeerInstanceID(peer.ID, instanceID); err != nil {
		writeStoreError(w, err)
		return
	}
	peer.InstanceID = &instanceID
	writeJSON(w, http.StatusCreated, peer)
}

// myConnectionString mints a fresh API key (valid until revoked, like any
// other key) and encodes this
// node's own connection string, for an operator to hand to a peer operator
// out of band — the encode-direction counterpart of POST /peers/connect.
func (srv *Server) myConnectionString(w http.ResponseWriter, r *http.Request) {
	_, raw, err := srv.store.GenerateApiKey("peer-connect")
	if err != nil {
		writeStoreError(w, err)
		return
	}
	url := srv.cfg.ExternalURL
	if url == "" {
		if _, extURL, _ := srv.nat.State(); extURL != "" {
			url = extURL
		}
	}
	encoded, err := fedclient.EncodeConnectionString(fedclient.ConnectionString{
		URL:  url,
		Name: srv.cfg.InstanceName,
		Key:  raw,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"connectionString": encoded})
}

func (srv *Server) deletePeer(w http.ResponseWriter, r *http.Request) {
	if err := srv.store.DeletePeer(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (srv *Server) browsePeerLibrary(w http.ResponseWriter, r *http.Request) {
	peer, err := srv.store.GetPeer(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	lib, err := srv.fedCli.BrowseLibrary(r.Context(), peer)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

type pullRequest struct {
	AutoMove  bool   `json:"autoMove"`
	LibraryID string `json:"libraryId"`
}

func (srv *Server) pullFromPeer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	peer, err := srv.store.GetPeer(vars["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req pullRequest
	_ = decodeJSON(r, &req)

	d, err := srv.fedCli.PullItem(r.Context(), peer, vars["rid"], req.AutoMove, req.LibraryID)
	if err != nil {
		switch {
		case errors.Is(err, fedclient.ErrAlreadyPresent):
			writeError(w, http.StatusConflict, "item already present locally")
		case errors.Is(err, fedclient.ErrRemoteItemNotFound):
			writeError(w, http.StatusNotFound, "remote item not found")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

type replicateRequest struct {
	LibraryID string `json:"libraryId"`
}

func (srv *Server) replicateFromPeer(w http.ResponseWriter, r *http.Request) {
	peer, err := srv.store.GetPeer(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req replicateRequest
	_ = decodeJSON(r, &req)
	if req.LibraryID != "" {
		if _, err := srv.store.GetLibrary(req.LibraryID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	result, err := srv.fedCli.ReplicateLibrary(r.Context(), peer, req.LibraryID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (srv *Server) resolvePeer(w http.ResponseWriter, r *http.Request) {
	peer, err := srv.store.GetPeer(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if peer.InstanceID == nil || *peer.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "peer has no instance id")
		return
	}

	result, err := srv.fedCli.ResolveGossip(r.Context(), peer)
	if err != nil {
		if errors.Is(err, fedclient.ErrCouldNotResolve) {
			writeError(w, http.StatusNotFound, "could not resolve")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
