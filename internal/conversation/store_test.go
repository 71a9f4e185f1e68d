package conversation

import (
	"reflect"
	"testing"
)

func TestStore_PersistLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	c := New("discord:123", "sys prompt")
	c.Append(Message{Role: "user", Content: "list files"})
	c.Append(assistantWithCalls("call_1"))
	c.Append(Message{Role: "tool", Content: "a.txt b.txt", ToolCallID: "call_1"})
	c.Append(Message{Role: "assistant", Content: "two files"})

	if err := store.Persist(c); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := store.Load("discord:123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("load returned nil for existing session")
	}

	if !reflect.DeepEqual(c.History(), loaded.History()) {
		t.Error("loaded history differs from persisted history")
	}
	if loaded.Session() != "discord:123" {
		t.Errorf("session = %q", loaded.Session())
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	c, err := store.Load("nope")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if c != nil {
		t.Error("expected nil conversation for missing session")
	}
}

func TestStore_LoadRestoresPendingCalls(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	c := New("s")
	c.Append(assistantWithCalls("unanswered"))
	if err := store.Persist(c); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := store.Load("s")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := loaded.Append(Message{Role: "tool", Content: "late result", ToolCallID: "unanswered"}); err != nil {
		t.Errorf("pending call not restored across load: %v", err)
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	for _, tag := range []string{"a", "b"} {
		c := New(tag, "sys")
		if err := store.Persist(c); err != nil {
			t.Fatalf("persist %s: %v", tag, err)
		}
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("list = %d entries, want 2", len(infos))
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	infos, _ = store.List()
	if len(infos) != 1 || infos[0].Session != "b" {
		t.Errorf("unexpected sessions after delete: %+v", infos)
	}
}
