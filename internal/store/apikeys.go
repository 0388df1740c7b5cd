package store

import (
	"crypto/sha256"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateApiKey creates a new random key, stores only its SHA-256 hash, and
// returns (row, rawKey). rawKey is shown to the caller exactly once; it is not
// recoverable from the store afterward.
func (s *Store) GenerateApiKey(label string) (*ApiKey, string, error) {
	raw, err := randomKey(32)
	if err != nil {
		return nil, "", err
	}
	hash := HashApiKey(raw)
	k := &ApiKey{
		ID:        uuid.NewString(),
		Label:     label,
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(`INSERT INTO api_keys (id, label, key_hash, created_at) VALUES (?, ?, ?, ?)`,
		k.ID, k.Label, k.KeyHash, k.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, "", err
	}
	return k, raw, nil
}

// HashApiKey returns the hex SHA-256 digest of a raw key, as stored in key_hash.
func HashApiKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FindApiKeyByHash looks up an api key row by its hash, used to authenticate
// an incoming request's bearer key.
func (s *Store) FindApiKeyByHash(hash string) (*ApiKey, error) {
	row := s.db.QueryRow(`SELECT id, label, key_hash, created_at FROM api_keys WHERE key_hash = ?`, hash)
	var k ApiKey
	var createdAt string
	if err := row.Scan(&k.ID, &k.Label, &k.KeyHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound{Entity: "api_key", ID: hash}
		}
		return nil, err
	}
	var err error
	if k.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// ListApiKeys returns all api keys (without raw values, which are never stored).
func (s *Store) ListApiKeys() ([]*ApiKey, error) {
	rows, err := s.db.Query(`SELECT id, label, key_hash, created_at FROM api_keys ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ApiKey
	for rows.Next() {
		var k ApiKey
		var createdAt string
		if err := rows.Scan(&k.ID, &k.Label, &k.KeyHash, &createdAt); err != nil {
			return nil, err
		}
		if k.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// DeleteApiKey revokes a key by ID.
func (s *Store) DeleteApiKey(id string) error {
	res, err := s.db.Exec(`DELETE FROM api_keys WHERE id = ?`, id)
	return checkUpdated(res, err, "api_key", id)
}

func randomKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("store: generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
