package memory

import (
	"context"
	"testing"
)

func TestStore_AddAndSearchContacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AddContact(ctx, Contact{Name: "Alice Moreau", Email: "alice@example.com", Phone: "+33 6 11 22 33 44"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddContact(ctx, Contact{Name: "Bob Tanaka", Email: "bob@example.org"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Partial, case-insensitive name match.
	hits, err := s.SearchContacts(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Alice Moreau" {
		t.Fatalf("name search = %+v", hits)
	}

	// Email and phone fragments match too.
	if hits, _ = s.SearchContacts(ctx, "example.org", 10); len(hits) != 1 || hits[0].Name != "Bob Tanaka" {
		t.Errorf("email search = %+v", hits)
	}
	if hits, _ = s.SearchContacts(ctx, "11 22", 10); len(hits) != 1 || hits[0].Name != "Alice Moreau" {
		t.Errorf("phone search = %+v", hits)
	}

	// Empty query lists everyone, name-ordered.
	all, err := s.SearchContacts(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Alice Moreau" {
		t.Errorf("listing = %+v", all)
	}
}

func TestStore_ContactNameRequired(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.AddContact(context.Background(), Contact{Name: "  ", Email: "x@y.z"}); err == nil {
		t.Error("nameless contact accepted")
	}
}

func TestStore_DeleteContact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddContact(ctx, Contact{Name: "Temp Person"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.DeleteContact(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteContact(ctx, id); err == nil {
		t.Error("second delete should fail")
	}

	hits, err := s.SearchContacts(ctx, "Temp", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted contact still listed: %+v", hits)
	}
}
