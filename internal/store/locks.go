package store

import "sync"

// sessionLocks is a registry of per-session write locks. The registry's
// own mutex is held only while looking up or inserting a lock, never
// during the guarded write.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the lock for a session id, creating it lazily.
func (l *sessionLocks) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	return m
}

// withSessionLock runs fn while holding the session's write lock, so two
// resyncs of the same session never interleave.
func (s *Store) withSessionLock(sessionID string, fn func() error) error {
	m := s.locks.get(sessionID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
