package session

import (
	"sync"

	"github.com/amitripshtos/auditlife/pkg/model"
)

// Store is the in-memory per-chat session map. It owns two pieces of state
// per chat: the pending destination-resolution Session, and a single-flight
// flag marking an in-flight pipeline run. All operations take one lock, so
// replace is atomic and no reader observes a half-updated session.
//
// Nothing survives a process restart; every chat silently comes back IDLE.
// That is a documented limitation of the system, not a bug.
type Store struct {
	mu       sync.RWMutex
	sessions map[model.ChatID]*model.Session
	inflight map[model.ChatID]struct{}
	gen      map[model.ChatID]uint64
}

func New() *Store {
	return &Store{
		sessions: make(map[model.ChatID]*model.Session),
		inflight: make(map[model.ChatID]struct{}),
		gen:      make(map[model.ChatID]uint64),
	}
}

// Get returns the pending session for the chat, if any. The returned
// session must be treated as immutable; transitions go through Put.
func (s *Store) Get(chatID model.ChatID) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	return sess, ok
}

// Put replaces the chat's session in a single step.
func (s *Store) Put(chatID model.ChatID, sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = sess
}

// Delete clears the chat's session without touching its generation. Used
// when a resolution completes normally.
func (s *Store) Delete(chatID model.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// Reset clears the chat's session and bumps its generation so that any
// pipeline run still in flight for the old state discards its result.
// Idempotent: resetting an idle chat is a no-op apart from the bump.
func (s *Store) Reset(chatID model.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	s.gen[chatID]++
}

// TryAcquire attempts to claim the chat's single-flight slot. It fails when
// a run is already in flight or an unresolved session is pending. On
// success it returns the chat's current generation, which PutIfCurrent
// checks before publishing the run's result.
func (s *Store) TryAcquire(chatID model.ChatID) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[chatID]; ok {
		return 0, false
	}
	if _, ok := s.sessions[chatID]; ok {
		return 0, false
	}
	s.inflight[chatID] = struct{}{}
	return s.gen[chatID], true
}

// Release frees the chat's single-flight slot.
func (s *Store) Release(chatID model.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, chatID)
}

// PutIfCurrent publishes a session only if the chat was not reset since the
// generation was observed. Returns false when the result is stale and must
// be discarded.
func (s *Store) PutIfCurrent(chatID model.ChatID, gen uint64, sess *model.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[chatID] != gen {
		return false
	}
	s.sessions[chatID] = sess
	return true
}
