package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RefCounter tracks how many file records reference each blob, so a blob
// shared through transfers is only removed from disk once no user's index
// points at it. Counts are persisted as a flat JSON map next to the other
// data files and rewritten on every mutation.
type RefCounter struct {
	path string

	mu     sync.Mutex
	counts map[string]int
}

// NewRefCounter loads the ledger at path, starting empty if none exists.
func NewRefCounter(path string) (*RefCounter, error) {
	rc := &RefCounter{path: path, counts: make(map[string]int)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rc, nil
		}
		return nil, fmt.Errorf("failed to read refcount ledger: %w", err)
	}
	if err := json.Unmarshal(data, &rc.counts); err != nil {
		return nil, fmt.Errorf("failed to parse refcount ledger: %w", err)
	}
	return rc, nil
}

// Retain increments the reference count for id and returns the new count.
func (rc *RefCounter) Retain(id string) (int, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.counts[id]++
	if err := rc.save(); err != nil {
		rc.counts[id]--
		return 0, err
	}
	return rc.counts[id], nil
}

// Release decrements the reference count for id and returns the remaining
// count. The entry is dropped from the ledger when it reaches zero; the
// caller is responsible for removing the blob itself. Releasing an unknown id
// returns zero.
func (rc *RefCounter) Release(id string) (int, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	n, ok := rc.counts[id]
	if !ok {
		return 0, nil
	}

	n--
	if n <= 0 {
		delete(rc.counts, id)
		n = 0
	} else {
		rc.counts[id] = n
	}
	if err := rc.save(); err != nil {
		return 0, err
	}
	return n, nil
}

// Count returns the current reference count for id.
func (rc *RefCounter) Count(id string) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.counts[id]
}

// SeedMissing adds entries for ids the ledger has never seen, using the
// reference counts observed in the user indexes. Data directories written
// before the ledger existed get correct counts this way, so the first delete
// of a transfer-shared blob cannot unlink it from under the other holders.
// Existing entries are left untouched.
func (rc *RefCounter) SeedMissing(counts map[string]int) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	changed := false
	for id, n := range counts {
		if _, ok := rc.counts[id]; ok || n <= 0 {
			continue
		}
		rc.counts[id] = n
		changed = true
	}
	if !changed {
		return nil
	}
	return rc.save()
}

// Forget drops ledger entries for ids that are not in the live set. Used by
// the sweeper to reconcile the ledger after crashes mid-operation.
func (rc *RefCounter) Forget(live map[string]struct{}) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	changed := false
	for id := range rc.counts {
		if _, ok := live[id]; !ok {
			delete(rc.counts, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return rc.save()
}

func (rc *RefCounter) save() error {
	data, err := json.MarshalIndent(rc.counts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode refcount ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(rc.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	// Temp-and-rename so a crash mid-write cannot truncate the ledger.
	tmp := rc.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write refcount ledger: %w", err)
	}
	if err := os.Rename(tmp, rc.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace refcount ledger: %w", err)
	}
	return nil
}
