package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

func record(id, name, owner string) FileRecord {
	return FileRecord{
		ID:         id,
		Name:       name,
		Size:       int64(len(name)),
		MimeType:   "text/plain",
		UploadedAt: time.Now().UTC(),
		Owner:      owner,
	}
}

func TestIndexStore_List(t *testing.T) {
	t.Run("missing index reads as empty list", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		records, err := s.List("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected empty list, got %d records", len(records))
		}
	})

	t.Run("preserves insertion order", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("file-%d", i)
			if err := s.Append("alice", record(id, id+".txt", "alice")); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		records, err := s.List("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 5 {
			t.Fatalf("expected 5 records, got %d", len(records))
		}
		for i, r := range records {
			if want := fmt.Sprintf("file-%d", i); r.ID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, r.ID)
			}
		}
	})
}

func TestIndexStore_Remove(t *testing.T) {
	t.Run("removes and returns the record", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		if err := s.Append("alice", record("file-1", "a.txt", "alice")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Append("alice", record("file-2", "b.txt", "alice")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		removed, err := s.Remove("alice", "file-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if removed.Name != "a.txt" {
			t.Errorf("expected a.txt, got %s", removed.Name)
		}

		records, _ := s.List("alice")
		if len(records) != 1 || records[0].ID != "file-2" {
			t.Errorf("unexpected remaining records: %+v", records)
		}
	})

	t.Run("unknown id fails", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		_, err := s.Remove("alice", "nope")
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})
}

func TestIndexStore_Update(t *testing.T) {
	t.Run("error aborts without writing", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		if err := s.Append("alice", record("file-1", "a.txt", "alice")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		boom := errors.New("boom")
		err := s.Update("alice", func(records []FileRecord) ([]FileRecord, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		records, _ := s.List("alice")
		if len(records) != 1 {
			t.Errorf("index was modified despite the error: %+v", records)
		}
	})

	t.Run("concurrent appends do not lose updates", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("file-%d", i)
				if err := s.Append("alice", record(id, id+".txt", "alice")); err != nil {
					t.Errorf("append %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		records, err := s.List("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != n {
			t.Errorf("expected %d records, got %d (lost updates)", n, len(records))
		}
	})
}

func TestIndexStore_Replace(t *testing.T) {
	t.Run("creates an empty index file", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		if err := s.Replace("alice", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		usernames, err := s.Usernames()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(usernames) != 1 || usernames[0] != "alice" {
			t.Errorf("expected [alice], got %v", usernames)
		}
	})
}

func TestIndexStore_AtomicWrites(t *testing.T) {
	t.Run("writes leave no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		s := NewIndexStore(dir)

		if err := s.Append("alice", record("file-1", "a.txt", "alice")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read dir: %v", err)
		}
		if len(entries) != 1 || entries[0].Name() != "alice_files.json" {
			t.Errorf("unexpected directory contents: %v", entries)
		}
	})
}

func TestIndexStore_ReferencedIDs(t *testing.T) {
	t.Run("collects ids across users", func(t *testing.T) {
		s := NewIndexStore(t.TempDir())

		if err := s.Append("alice", record("file-1", "a.txt", "alice")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Append("bob", record("file-1", "a.txt", "bob")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Append("bob", record("file-2", "b.txt", "bob")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ids, err := s.ReferencedIDs()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 distinct ids, got %d", len(ids))
		}
		for _, want := range []string{"file-1", "file-2"} {
			if _, ok := ids[want]; !ok {
				t.Errorf("missing id %s", want)
			}
		}
	})
}
