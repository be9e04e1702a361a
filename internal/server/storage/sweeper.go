package storage

import (
	"context"
	"log/slog"
	"time"
)

// ReferenceSource reports which blob ids are still referenced by at least one
// user's file index.
type ReferenceSource interface {
	ReferencedIDs() (map[string]struct{}, error)
}

// Sweeper periodically removes blobs that no user index references anymore
// and prunes stale refcount ledger entries. It backstops the refcount path:
// a crash between an index write and a ledger write can leave either side
// behind, and the sweep reconciles both against the indexes.
type Sweeper struct {
	source   ReferenceSource
	store    BlobStore
	ledger   *RefCounter
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a new orphan-blob sweeper.
func NewSweeper(source ReferenceSource, store BlobStore, ledger *RefCounter, interval time.Duration) *Sweeper {
	return &Sweeper{
		source:   source,
		store:    store,
		ledger:   ledger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep()

		for {
			select {
			case <-ticker.C:
				s.runSweep()
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep() {
	referenced, err := s.source.ReferencedIDs()
	if err != nil {
		slog.Error("sweep: failed to collect referenced ids", "error", err)
		return
	}

	blobIDs, err := s.store.IDs()
	if err != nil {
		slog.Error("sweep: failed to list blobs", "error", err)
		return
	}

	// An upload writes its blob before appending the index record, so a blob
	// can legitimately be unreferenced for a moment. Blobs modified within
	// the last sweep interval are left for the next cycle.
	cutoff := time.Now().Add(-s.interval)

	var removed, failed int
	for _, id := range blobIDs {
		if _, ok := referenced[id]; ok {
			continue
		}
		modTime, err := s.store.ModTime(id)
		if err != nil {
			// Raced with a delete; nothing left to sweep.
			continue
		}
		if modTime.After(cutoff) {
			continue
		}
		if err := s.store.Delete(id); err != nil {
			slog.Error("sweep: failed to delete orphaned blob", "blob_id", id, "error", err)
			failed++
			continue
		}
		removed++
		slog.Info("sweep: removed orphaned blob", "blob_id", id)
	}

	if err := s.ledger.Forget(referenced); err != nil {
		slog.Error("sweep: failed to prune refcount ledger", "error", err)
	}

	if removed > 0 || failed > 0 {
		slog.Info("sweep complete", "removed", removed, "failed", failed, "blobs", len(blobIDs))
	}
}
