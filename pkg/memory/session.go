package memory

import (
	"sync"
	"time"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// userLocks hands out one mutex per user so profile read-modify-write cycles
// are serialized per user while distinct users proceed in parallel.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the user's mutex and returns its unlock function.
func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	userLock, ok := u.locks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		u.locks[userID] = userLock
	}
	u.mu.Unlock()

	userLock.Lock()
	return userLock.Unlock
}

// sessionTable holds the transient per-user session markers. Sessions live
// in process memory only and are never written to storage.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*storage.SessionInfo
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*storage.SessionInfo)}
}

// start opens a fresh session for the user, replacing any existing one.
func (s *sessionTable) start(userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = &storage.SessionInfo{StartedAt: at}
}

// end discards the user's session.
func (s *sessionTable) end(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// get returns a copy of the user's session, or nil when no session is live.
func (s *sessionTable) get(userID string) *storage.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// bump increments the query counter of the user's live session, if any.
func (s *sessionTable) bump(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[userID]; ok {
		session.QueryCount++
	}
}
