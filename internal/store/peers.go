package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreatePeer registers a remote node we trust with a name, base URL and the
// api key we will present to it on every federation call.
func (s *Store) CreatePeer(name, url, apiKey string, autoReplicate bool, syncLibraryID *string) (*Peer, error) {
	p := &Peer{
		ID:            uuid.NewString(),
		Name:          name,
		URL:           url,
		APIKey:        apiKey,
		AutoReplicate: autoReplicate,
		SyncLibraryID: syncLibraryID,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO peers
		(id, name, url, api_key, instance_id, auto_replicate, sync_library_id, last_seen, created_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, NULL, ?)`,
		p.ID, p.Name, p.URL, p.APIKey, p.AutoReplicate, p.SyncLibraryID,
		p.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPeer returns a single peer by ID.
func (s *Store) GetPeer(id string) (*Peer, error) {
	row := s.db.QueryRow(`SELECT id, name, url, api_key, instance_id, auto_replicate,
		sync_library_id, last_seen, created_at FROM peers WHERE id = ?`, id)
	p, err := scanPeer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{Entity: "peer", ID: id}
	}
	return p, err
}

// ListPeers returns all known peers.
func (s *Store) ListPeers() ([]*Peer, error) {
	rows, err := s.db.Query(`SELECT id, name, url, api_key, instance_id, auto_replicate,
		sync_library_id, last_seen, created_at FROM peers ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAutoReplicatePeers returns only peers with auto_replicate set, for the
// peer-sync scheduler's tick.
func (s *Store) ListAutoReplicatePeers() ([]*Peer, error) {
	rows, err := s.db.Query(`SELECT id, name, url, api_key, instance_id, auto_replicate,
		sync_library_id, last_seen, created_at FROM peers WHERE auto_replicate = 1
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePeerURL rewrites the base URL, used by the federation server's
// announce handler when a peer reports a new reachable address.
func (s *Store) UpdatePeerURL(id, url string) error {
	res, err := s.db.Exec(`UPDATE peers SET url = ? WHERE id = ?`, url, id)
	return checkUpdated(res, err, "peer", id)
}

// SetPeerInstanceID records the remote instance ID learned during a probe or resolve.
func (s *Store) SetPeerInstanceID(id, instanceID string) error {
	res, err := s.db.Exec(`UPDATE peers SET instance_id = ? WHERE id = ?`, instanceID, id)
	return checkUpdated(res, err, "peer", id)
}

// TouchPeerLastSeen updates last_seen to now, called after any successful call to the peer.
func (s *Store) TouchPeerLastSeen(id string) error {
	res, err := s.db.Exec(`UPDATE peers SET last_seen = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	return checkUpdated(res, err, "peer", id)
}

// SetPeerAutoReplicate toggles whether the peer-sync scheduler should pull from this peer.
func (s *Store) SetPeerAutoReplicate(id string, enabled bool, syncLibraryID *string) error {
	res, err := s.db.Exec(`UPDATE peers SET auto_replicate = ?, sync_library_id = ? WHERE id = ?`,
		enabled, syncLibraryID, id)
	return checkUpdated(res, err, "peer", id)
}

// DeletePeer removes a peer by ID.
func (s *Store) DeletePeer(id string) error {
	res, err := s.db.Exec(`DELETE FROM peers WHERE id = ?`, id)
	return checkUpdated(res, err, "peer", id)
}

func scanPeer(row rowScanner) (*Peer, error) {
	var p Peer
	var createdAt string
	var lastSeen sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.URL, &p.APIKey, &p.InstanceID, &p.AutoReplicate,
		&p.SyncLibraryID, &lastSeen, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastSeen.String)
		if err != nil {
			return nil, err
		}
		p.LastSeen = &t
	}
	return &p, nil
}
