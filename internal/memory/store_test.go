package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "default", "The boiler maintenance code is 4411", "house"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Save(ctx, "default", "Dentist appointment moved to Thursday", "calendar"); err != nil {
		t.Fatalf("save: %v", err)
	}

	hits, err := s.Search(ctx, "boiler code", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexed note")
	}
	if hits[0].Tags != "house" {
		t.Errorf("top hit tags = %q", hits[0].Tags)
	}
	if hits[0].Score <= 0 || hits[0].Score > 1 {
		t.Errorf("score out of range: %f", hits[0].Score)
	}
}

func TestStore_SearchHandlesPunctuation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "default", "wifi password is hunter2", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Quotes and operators in the query must not break the match grammar.
	if _, err := s.Search(ctx, `wifi "password" OR -`, 5); err != nil {
		t.Fatalf("search with punctuation: %v", err)
	}
}

func TestStore_RecentScopedBySession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Save(ctx, "work", "standup at nine", "")
	s.Save(ctx, "home", "water the plants", "")
	s.Save(ctx, "work", "review open invoices", "")

	notes, err := s.Recent(ctx, "work", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	for _, n := range notes {
		if n.Session != "work" {
			t.Errorf("note %q leaked from session %q", n.Text, n.Session)
		}
	}
}

func TestStore_DeleteRemovesFromIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "default", "temporary scratch note", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, id); err == nil {
		t.Error("second delete should fail")
	}

	hits, err := s.Search(ctx, "scratch", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted note still searchable: %+v", hits)
	}

	// The search joins against notes, so check the index table directly:
	// a stale FTS row must not survive the delete.
	var orphans int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes_fts WHERE id = ?`, id).Scan(&orphans); err != nil {
		t.Fatalf("fts count: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d stale index rows left after delete", orphans)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("count = %d, err = %v", n, err)
	}
}

func TestStore_EmptyNoteRejected(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save(context.Background(), "default", "   ", ""); err == nil {
		t.Error("empty note accepted")
	}
}
