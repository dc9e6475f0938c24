// Package state persists router conversation state: per-chat session handles,
// the recently-processed message window, and archived sessions.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProcessedMessageLimit bounds the dedup window. Oldest ids are evicted first.
const ProcessedMessageLimit = 200

const (
	stateFileName   = "router_state.json"
	archiveFileName = "archived_sessions.json"
)

// ArchivedSession records a session removed by an explicit clear.
type ArchivedSession struct {
	SessionID string    `json:"session_id"`
	ClearedAt time.Time `json:"cleared_at"`
}

// routerState is the on-disk shape of the main state file.
type routerState struct {
	Sessions          map[string]string `json:"sessions"`
	ProcessedMessages []string          `json:"processed_messages"`
}

// Store is an in-memory state cache backed by JSON files. It is read once at
// construction; Save flushes accumulated mutations back to disk.
type Store struct {
	dir string

	// saveMu serializes Save calls: concurrent handlers share one temp
	// file path, so interleaved writes could publish a torn snapshot.
	saveMu sync.Mutex

	mu        sync.Mutex
	sessions  map[string]string
	processed []string
	seen      map[string]struct{}
	archived  map[string][]ArchivedSession
}

// NewStore loads state from dir, falling back to empty state when files are
// missing or corrupt.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		sessions: make(map[string]string),
		seen:     make(map[string]struct{}),
		archived: make(map[string][]ArchivedSession),
	}

	var rs routerState
	if data, err := os.ReadFile(filepath.Join(dir, stateFileName)); err == nil {
		if json.Unmarshal(data, &rs) == nil {
			if rs.Sessions != nil {
				s.sessions = rs.Sessions
			}
			for _, id := range rs.ProcessedMessages {
				s.processed = append(s.processed, id)
				s.seen[id] = struct{}{}
			}
			s.trimWindowLocked()
		}
	}

	var archived map[string][]ArchivedSession
	if data, err := os.ReadFile(filepath.Join(dir, archiveFileName)); err == nil {
		if json.Unmarshal(data, &archived) == nil && archived != nil {
			s.archived = archived
		}
	}

	return s, nil
}

// GetSession returns the session handle for a chat, if any.
func (s *Store) GetSession(chatID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[chatID]
	return id, ok
}

// SetSession overwrites the session handle for a chat.
func (s *Store) SetSession(chatID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = sessionID
}

// ClearSession archives and removes the chat's session. Returns whether a
// session existed; a second call is a no-op returning false.
func (s *Store) ClearSession(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.sessions[chatID]
	if !ok {
		return false
	}
	delete(s.sessions, chatID)
	s.archived[chatID] = append(s.archived[chatID], ArchivedSession{
		SessionID: sessionID,
		ClearedAt: time.Now(),
	})
	return true
}

// ArchivedSessions returns the archive entries for a chat (oldest first).
func (s *Store) ArchivedSessions(chatID string) []ArchivedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ArchivedSession, len(s.archived[chatID]))
	copy(out, s.archived[chatID])
	return out
}

// IsDuplicate reports whether messageID is in the dedup window. The window is
// process-wide, not per chat: an id colliding across chats counts as seen.
func (s *Store) IsDuplicate(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[messageID]
	return ok
}

// MarkProcessed records messageID in the dedup window, evicting the oldest
// entry once the window exceeds ProcessedMessageLimit.
func (s *Store) MarkProcessed(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[messageID]; ok {
		return
	}
	s.processed = append(s.processed, messageID)
	s.seen[messageID] = struct{}{}
	s.trimWindowLocked()
}

func (s *Store) trimWindowLocked() {
	for len(s.processed) > ProcessedMessageLimit {
		delete(s.seen, s.processed[0])
		s.processed = s.processed[1:]
	}
}

// Save flushes the in-memory state to disk. Callers invoke it after every
// mutating sequence so state survives restarts.
func (s *Store) Save() error {
	s.mu.Lock()
	rs := routerState{
		Sessions:          make(map[string]string, len(s.sessions)),
		ProcessedMessages: make([]string, len(s.processed)),
	}
	for k, v := range s.sessions {
		rs.Sessions[k] = v
	}
	copy(rs.ProcessedMessages, s.processed)
	archived := make(map[string][]ArchivedSession, len(s.archived))
	for k, v := range s.archived {
		archived[k] = append([]ArchivedSession(nil), v...)
	}
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := writeJSON(filepath.Join(s.dir, stateFileName), rs); err != nil {
		return fmt.Errorf("save router state: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, archiveFileName), archived); err != nil {
		return fmt.Errorf("save session archive: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
