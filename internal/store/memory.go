// memory.go -- In-process pending-auth and result store.
//
// Used when REDIS_URL is unset (single-instance deployments, local dev).
// Same contract as RedisStore: identical re-puts succeed, takes are atomic.
// Expired entries are purged lazily on access and by a periodic sweep.
package store

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore implements the pending-auth and result stores in memory.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	results  map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore returns an empty store. Call Run to start the sweeper.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		results:  make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// CheckHealth always succeeds.
func (s *MemoryStore) CheckHealth(context.Context) error { return nil }

// Put stores session under key for ttl.
// Returns ErrSessionCollision if a different live session already holds key.
func (s *MemoryStore) Put(_ context.Context, key string, session *AuthSession, ttl time.Duration) error {
	val, err := encodeSession(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.sessions[key]; ok && now.Before(cur.expiresAt) {
		if bytes.Equal(cur.value, val) {
			return nil
		}
		return ErrSessionCollision
	}
	s.sessions[key] = memoryEntry{value: val, expiresAt: now.Add(ttl)}
	return nil
}

// TakeIfValid removes and returns the session under key.
// Missing, expired and undecodable values are all ErrSessionNotFound.
func (s *MemoryStore) TakeIfValid(_ context.Context, key string) (*AuthSession, error) {
	s.mu.Lock()
	entry, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	now := s.now()
	if !ok || !now.Before(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}

	session, err := decodeSession(entry.value)
	if err != nil {
		return nil, err
	}
	if session.Expired(now) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// PutResult stores a delivery payload under ticket for ttl.
func (s *MemoryStore) PutResult(_ context.Context, ticket string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[ticket] = memoryEntry{value: bytes.Clone(payload), expiresAt: s.now().Add(ttl)}
	return nil
}

// TakeResult removes and returns the payload under ticket.
func (s *MemoryStore) TakeResult(_ context.Context, ticket string) ([]byte, error) {
	s.mu.Lock()
	entry, ok := s.results[ticket]
	delete(s.results, ticket)
	s.mu.Unlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, ErrResultNotFound
	}
	return entry.value, nil
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops every expired session and result. Returns how many entries were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, m := range []map[string]memoryEntry{s.sessions, s.results} {
		for k, e := range m {
			if !now.Before(e.expiresAt) {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled. Blocks; start it in a goroutine.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("swept expired auth entries", "removed", n)
			}
		}
	}
}
