package peersync

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/animedb/animedb-node/internal/store"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "animedb.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduler_firstTickFiresImmediately(t *testing.T) {
	st := openTest(t)
	libID := "lib-1"
	_, err := st.CreatePeer("Auto", "https://auto.example.com", "key", true, &libID)
	if err != nil {
		t.Fatalf("CreatePeer: %v", err)
	}
	_, err = st.CreatePeer("Manual", "https://manual.example.com", "key2", false, nil)
	if err != nil {
		t.Fatalf("CreatePeer: %v", err)
	}

	var mu sync.Mutex
	var calls []string
	sched := New(st, 15, func(ctx context.Context, peer *store.Peer, libraryID string) error {
		mu.Lock()
		calls = append(calls, peer.Name+":"+libraryID)
		mu.Unlock()
		return nil
	})

	sched.Start(context.Background())
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(calls)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || calls[0] != "Auto:lib-1" {
		t.Errorf("calls = %v, want exactly one call for the auto_replicate peer", calls)
	}
}

func TestScheduler_startIsIdempotent(t *testing.T) {
	st := openTest(t)
	var callCount int
	var mu sync.Mutex
	sched := New(st, 15, func(ctx context.Context, peer *store.Peer, libraryID string) error {
		mu.Lock()
		callCount++
		mu.Unlock()
		return nil
	})

	sched.Start(context.Background())
	sched.Start(context.Background())
	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	// No peers registered, so callCount should be 0 regardless, but Start
	// must not panic or double-register the cron job on repeated calls.
	_ = callCount
}
