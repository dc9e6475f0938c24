package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSessionOverwrite(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.GetSession("chat-1"); ok {
		t.Fatal("expected no session before first set")
	}

	s.SetSession("chat-1", "sess-a")
	s.SetSession("chat-1", "sess-b")

	got, ok := s.GetSession("chat-1")
	if !ok || got != "sess-b" {
		t.Errorf("GetSession = %q, %v; want sess-b, true", got, ok)
	}
}

func TestClearSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.SetSession("chat-1", "sess-a")

	if !s.ClearSession("chat-1") {
		t.Error("first clear should report an existing session")
	}
	if s.ClearSession("chat-1") {
		t.Error("second clear should report no session")
	}

	archived := s.ArchivedSessions("chat-1")
	if len(archived) != 1 {
		t.Fatalf("archive has %d entries, want 1", len(archived))
	}
	if archived[0].SessionID != "sess-a" {
		t.Errorf("archived session = %q, want sess-a", archived[0].SessionID)
	}
	if archived[0].ClearedAt.IsZero() {
		t.Error("archived entry missing cleared_at")
	}
}

func TestDedupWindowEviction(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < ProcessedMessageLimit+1; i++ {
		id := fmt.Sprintf("msg-%d", i)
		if s.IsDuplicate(id) {
			t.Fatalf("%s unexpectedly marked duplicate", id)
		}
		s.MarkProcessed(id)
	}

	// The oldest id fell out of the window; the rest are still tracked.
	if s.IsDuplicate("msg-0") {
		t.Error("msg-0 should have been evicted")
	}
	if !s.IsDuplicate("msg-1") {
		t.Error("msg-1 should still be in the window")
	}
	if !s.IsDuplicate(fmt.Sprintf("msg-%d", ProcessedMessageLimit)) {
		t.Error("newest id should be in the window")
	}
}

func TestDedupIsGlobalAcrossChats(t *testing.T) {
	s := newTestStore(t)
	s.MarkProcessed("shared-id")

	// Same id from a different chat still counts as a duplicate.
	if !s.IsDuplicate("shared-id") {
		t.Error("dedup window must be process-wide, not per chat")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.SetSession("chat-1", "sess-a")
	s.MarkProcessed("msg-1")
	s.SetSession("chat-2", "sess-b")
	s.ClearSession("chat-2")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if got, ok := reloaded.GetSession("chat-1"); !ok || got != "sess-a" {
		t.Errorf("reloaded session = %q, %v; want sess-a, true", got, ok)
	}
	if _, ok := reloaded.GetSession("chat-2"); ok {
		t.Error("cleared session survived reload")
	}
	if !reloaded.IsDuplicate("msg-1") {
		t.Error("processed id lost on reload")
	}
	if len(reloaded.ArchivedSessions("chat-2")) != 1 {
		t.Error("archive lost on reload")
	}
}

func TestConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.SetSession("chat-1", "sess-a")

	// Concurrent handlers each flush after mutating; the published files
	// must stay parseable snapshots, never a torn mix of two writes.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.MarkProcessed(fmt.Sprintf("msg-%d", i))
			if err := s.Save(); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(i)
	}
	wg.Wait()

	reloaded, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if got, ok := reloaded.GetSession("chat-1"); !ok || got != "sess-a" {
		t.Errorf("reloaded session = %q, %v; want sess-a, true", got, ok)
	}
}

func TestCorruptStateFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "router_state.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "archived_sessions.json"), []byte("also not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore should tolerate corrupt files, got %v", err)
	}
	if _, ok := s.GetSession("chat-1"); ok {
		t.Error("corrupt state should load as empty")
	}
	if s.IsDuplicate("msg-1") {
		t.Error("corrupt state should have an empty dedup window")
	}
}
