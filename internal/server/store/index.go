package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrFileNotFound = errors.New("file not found")

const indexSuffix = "_files.json"

// IndexStore persists each user's file index as a single JSON array at
// <dir>/<username>_files.json, the layout the original data files use. Reads
// and writes always cover the whole file; writes to the same user's index are
// serialized by a mutex keyed by username, so concurrent mutations cannot
// lose updates. A missing index file reads as an empty list.
type IndexStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIndexStore creates an index store rooted at dir.
func NewIndexStore(dir string) *IndexStore {
	return &IndexStore{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// EnsureDir creates the index directory if it doesn't exist.
func (s *IndexStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory %s: %w", s.dir, err)
	}
	return nil
}

// userLock returns the mutex serializing access to one user's index file.
func (s *IndexStore) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[username]
	if !ok {
		l = &sync.Mutex{}
		s.locks[username] = l
	}
	return l
}

// List returns the user's file records in insertion order. Users with no
// index file yet get an empty list.
func (s *IndexStore) List(username string) ([]FileRecord, error) {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()

	return s.load(username)
}

// Update applies fn to the user's records and persists the result, all under
// the user's lock. fn receives the current records and returns the records to
// store; returning an error aborts without writing.
func (s *IndexStore) Update(username string, fn func([]FileRecord) ([]FileRecord, error)) error {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()

	records, err := s.load(username)
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return s.save(username, updated)
}

// Append adds a record to the end of the user's index.
func (s *IndexStore) Append(username string, record FileRecord) error {
	return s.Update(username, func(records []FileRecord) ([]FileRecord, error) {
		return append(records, record), nil
	})
}

// Remove deletes the record with the given id from the user's index and
// returns it. Fails with ErrFileNotFound if the user holds no such record.
func (s *IndexStore) Remove(username, id string) (FileRecord, error) {
	var removed FileRecord
	err := s.Update(username, func(records []FileRecord) ([]FileRecord, error) {
		kept := records[:0]
		found := false
		for _, r := range records {
			if r.ID == id {
				removed = r
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return nil, ErrFileNotFound
		}
		return kept, nil
	})
	return removed, err
}

// Replace overwrites the user's index with the given records.
func (s *IndexStore) Replace(username string, records []FileRecord) error {
	l := s.userLock(username)
	l.Lock()
	defer l.Unlock()

	return s.save(username, records)
}

// Usernames returns every user that has an index file on disk.
func (s *IndexStore) Usernames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), indexSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), indexSuffix))
	}
	return names, nil
}

// ReferenceCounts returns, for every blob id, how many records across all
// user indexes reference it.
func (s *IndexStore) ReferenceCounts() (map[string]int, error) {
	usernames, err := s.Usernames()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, username := range usernames {
		records, err := s.List(username)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			counts[r.ID]++
		}
	}
	return counts, nil
}

// ReferencedIDs returns the set of blob ids referenced by any user's index.
// Used by the orphan sweeper to decide which blobs are still alive.
func (s *IndexStore) ReferencedIDs() (map[string]struct{}, error) {
	counts, err := s.ReferenceCounts()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(counts))
	for id := range counts {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *IndexStore) path(username string) string {
	return filepath.Join(s.dir, username+indexSuffix)
}

func (s *IndexStore) load(username string) ([]FileRecord, error) {
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if os.IsNotExist(err) {
			return []FileRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read index for %s: %w", username, err)
	}

	var records []FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse index for %s: %w", username, err)
	}
	if records == nil {
		records = []FileRecord{}
	}
	return records, nil
}

func (s *IndexStore) save(username string, records []FileRecord) error {
	if records == nil {
		records = []FileRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index for %s: %w", username, err)
	}
	return writeFileAtomic(s.path(username), data)
}
