package assist

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore(t *testing.T) {
	t.Parallel()

	newStore := func(t *testing.T) *FileStore {
		t.Helper()
		store, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return store
	}

	t.Run("load missing record returns nil", func(t *testing.T) {
		store := newStore(t)
		tr, err := store.Load("5511999999999")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if tr != nil {
			t.Errorf("expected nil transcript, got %+v", tr)
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		store := newStore(t)
		tr := NewTranscript("sys")
		tr.MergeUserText("hi")

		if err := store.Save("5511999999999", tr); err != nil {
			t.Fatalf("Save: %v", err)
		}

		loaded, err := store.Load("5511999999999")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if loaded == nil || len(loaded.Turns) != 2 {
			t.Fatalf("loaded = %+v, want 2 turns", loaded)
		}
		if loaded.Turns[1].Content != "hi" {
			t.Errorf("user turn = %q, want %q", loaded.Turns[1].Content, "hi")
		}
	})

	t.Run("corrupt record loads as absent", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}

		tr, err := store.Load("bad")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if tr != nil {
			t.Errorf("expected nil for corrupt record, got %+v", tr)
		}
	})

	t.Run("clear missing record creates nothing", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}

		cleared, err := store.Clear("5511999999999")
		if err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if cleared {
			t.Error("expected cleared=false for missing record")
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected empty dir after clearing missing record, got %d entries", len(entries))
		}
	})

	t.Run("clear existing record", func(t *testing.T) {
		store := newStore(t)
		if err := store.Save("5511999999999", NewTranscript("sys")); err != nil {
			t.Fatalf("Save: %v", err)
		}

		cleared, err := store.Clear("5511999999999")
		if err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if !cleared {
			t.Error("expected cleared=true")
		}

		tr, _ := store.Load("5511999999999")
		if tr != nil {
			t.Errorf("expected nil after clear, got %+v", tr)
		}
	})

	t.Run("list returns sender keys", func(t *testing.T) {
		store := newStore(t)
		store.Save("111", NewTranscript("sys"))
		store.Save("222", NewTranscript("sys"))

		senders, err := store.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(senders) != 2 {
			t.Errorf("expected 2 senders, got %v", senders)
		}
	})

	t.Run("availability defaults to available", func(t *testing.T) {
		store := newStore(t)
		if !store.Available() {
			t.Error("expected fresh store to report available")
		}
	})

	t.Run("availability roundtrip", func(t *testing.T) {
		store := newStore(t)
		if err := store.SetAvailable(false); err != nil {
			t.Fatalf("SetAvailable: %v", err)
		}
		if store.Available() {
			t.Error("expected unavailable after SetAvailable(false)")
		}
		if err := store.SetAvailable(true); err != nil {
			t.Fatalf("SetAvailable: %v", err)
		}
		if !store.Available() {
			t.Error("expected available after SetAvailable(true)")
		}
	})

	t.Run("prune removes only idle transcripts", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		store.Save("old", NewTranscript("sys"))
		store.Save("fresh", NewTranscript("sys"))

		// Age the first record's file.
		past := time.Now().Add(-48 * time.Hour)
		if err := os.Chtimes(filepath.Join(dir, "old.json"), past, past); err != nil {
			t.Fatal(err)
		}

		pruned, err := store.PruneOlderThan(24 * time.Hour)
		if err != nil {
			t.Fatalf("PruneOlderThan: %v", err)
		}
		if pruned != 1 {
			t.Errorf("pruned = %d, want 1", pruned)
		}
		if tr, _ := store.Load("fresh"); tr == nil {
			t.Error("fresh transcript should survive pruning")
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	newStore := func(t *testing.T) *SQLiteStore {
		t.Helper()
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "standin.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	}

	t.Run("save load clear roundtrip", func(t *testing.T) {
		store := newStore(t)

		tr, err := store.Load("5511999999999")
		if err != nil || tr != nil {
			t.Fatalf("Load missing = (%+v, %v), want (nil, nil)", tr, err)
		}

		saved := NewTranscript("sys")
		saved.MergeUserText("hi")
		if err := store.Save("5511999999999", saved); err != nil {
			t.Fatalf("Save: %v", err)
		}

		loaded, err := store.Load("5511999999999")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if loaded == nil || len(loaded.Turns) != 2 || loaded.Turns[1].Content != "hi" {
			t.Fatalf("loaded = %+v, want seeded transcript with %q", loaded, "hi")
		}

		cleared, err := store.Clear("5511999999999")
		if err != nil || !cleared {
			t.Fatalf("Clear = (%v, %v), want (true, nil)", cleared, err)
		}
		cleared, err = store.Clear("5511999999999")
		if err != nil || cleared {
			t.Fatalf("second Clear = (%v, %v), want (false, nil)", cleared, err)
		}
	})

	t.Run("availability roundtrip", func(t *testing.T) {
		store := newStore(t)

		if !store.Available() {
			t.Error("expected fresh store to report available")
		}
		if err := store.SetAvailable(false); err != nil {
			t.Fatalf("SetAvailable: %v", err)
		}
		if store.Available() {
			t.Error("expected unavailable after SetAvailable(false)")
		}
	})

	t.Run("prune removes idle rows", func(t *testing.T) {
		store := newStore(t)

		old := NewTranscript("sys")
		old.UpdatedAt = time.Now().Add(-48 * time.Hour)
		store.Save("old", old)
		store.Save("fresh", NewTranscript("sys"))

		pruned, err := store.PruneOlderThan(24 * time.Hour)
		if err != nil {
			t.Fatalf("PruneOlderThan: %v", err)
		}
		if pruned != 1 {
			t.Errorf("pruned = %d, want 1", pruned)
		}
	})
}
