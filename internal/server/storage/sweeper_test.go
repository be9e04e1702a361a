package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type staticSource map[string]struct{}

func (s staticSource) ReferencedIDs() (map[string]struct{}, error) {
	return s, nil
}

func TestSweeper_RunSweep(t *testing.T) {
	t.Run("removes unreferenced blobs, keeps referenced ones", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		ledger, err := NewRefCounter(filepath.Join(t.TempDir(), "refcounts.json"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		old := time.Now().Add(-2 * time.Hour)
		for _, id := range []string{"blob-live", "blob-orphan"} {
			if _, err := store.Save(id, bytes.NewReader([]byte("x"))); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := os.Chtimes(filepath.Join(dir, id), old, old); err != nil {
				t.Fatalf("failed to backdate blob: %v", err)
			}
		}
		ledger.Retain("blob-live")
		ledger.Retain("blob-orphan")

		s := NewSweeper(staticSource{"blob-live": {}}, store, ledger, time.Hour)
		s.runSweep()

		ids, err := store.IDs()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, id := range ids {
			if id == "blob-orphan" {
				t.Error("orphaned blob survived the sweep")
			}
		}
		found := false
		for _, id := range ids {
			if id == "blob-live" {
				found = true
			}
		}
		if !found {
			t.Error("referenced blob was removed")
		}

		if ledger.Count("blob-orphan") != 0 {
			t.Error("ledger entry for orphan survived")
		}
		if ledger.Count("blob-live") != 1 {
			t.Error("ledger entry for live blob was pruned")
		}
	})

	t.Run("leaves freshly written unreferenced blobs alone", func(t *testing.T) {
		// An in-flight upload has written its blob but not yet appended the
		// index record, so the blob looks unreferenced for a moment.
		store := NewFileSystemStore(t.TempDir())
		ledger, err := NewRefCounter(filepath.Join(t.TempDir(), "refcounts.json"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := store.Save("blob-inflight", bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := NewSweeper(staticSource{}, store, ledger, time.Hour)
		s.runSweep()

		ids, err := store.IDs()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 1 || ids[0] != "blob-inflight" {
			t.Errorf("fresh blob did not survive the sweep: %v", ids)
		}
	})
}

func TestSweeper_Lifecycle(t *testing.T) {
	t.Run("stops on context cancel", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		ledger, err := NewRefCounter(filepath.Join(t.TempDir(), "refcounts.json"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := NewSweeper(staticSource{}, store, ledger, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		s.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() {
			s.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not stop after cancel")
		}
	})
}
