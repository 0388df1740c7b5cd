// Package peersync periodically triggers a full library replicate for every
// peer flagged auto_replicate, on a single process-wide cron schedule.
package peersync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/animedb/animedb-node/internal/store"
)

// Scheduler drives robfig/cron on a clamped interval, replicating every
// auto_replicate peer on each tick. The first tick fires immediately at Start.
type Scheduler struct {
	store       *store.Store
	replicate   func(ctx context.Context, peer *store.Peer, libraryID string) error
	intervalMin int

	mu      sync.Mutex
	cronJob *cron.Cron
	started bool
}

// New returns a Scheduler that calls replicate for each auto_replicate peer
// on every tick, at intervalMinutes (clamped 5..1440 by the caller's config loader).
func New(s *store.Store, intervalMinutes int, replicate func(ctx context.Context, peer *store.Peer, libraryID string) error) *Scheduler {
	return &Scheduler{
		store:       s,
		replicate:   replicate,
		intervalMin: intervalMinutes,
	}
}

// Start registers the cron job and fires the first tick immediately.
// Idempotent: a second call is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	c := cron.New()
	s.cronJob = c
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %dm", s.intervalMin)
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		log.Printf("peersync: invalid schedule %q: %v", spec, err)
		return
	}
	c.Start()

	go s.tick(ctx)
}

// Stop halts the cron scheduler; safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronJob != nil {
		s.cronJob.Stop()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	peers, err := s.store.ListAutoReplicatePeers()
	if err != nil {
		log.Printf("peersync: list auto-replicate peers: %v", err)
		return
	}
	for _, p := range peers {
		libID := ""
		if p.SyncLibraryID != nil {
			libID = *p.SyncLibraryID
		}
		if err := s.replicate(ctx, p, libID); err != nil {
			log.Printf("peersync: replicate from %s (%s) failed: %v", p.Name, p.URL, err)
		}
	}
}
