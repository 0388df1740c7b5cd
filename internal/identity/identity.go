// Package identity manages the node's stable instance ID, the value a peer
// learns about us during announce/resolve and uses to recognize the same
// node across URL or address changes.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/animedb/animedb-node/internal/store"
)

// Get returns the node's instance ID, creating and persisting one on first run.
func Get(s *store.Store) (string, error) {
	if v, ok, err := s.GetSetting(store.SettingInstanceID); err != nil {
		return "", fmt.Errorf("identity: read instance id: %w", err)
	} else if ok {
		return v, nil
	}

	id := uuid.NewString()
	if err := s.SetSetting(store.SettingInstanceID, id); err != nil {
		return "", fmt.Errorf("identity: persist instance id: %w", err)
	}
	return id, nil
}
