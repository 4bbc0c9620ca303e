package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store. Expiry is checked lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	Now     func() time.Time
}

type memEntry struct {
	Entry
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memEntry{}}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryStore) Claim(_ context.Context, key, token string, lease time.Duration) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		cur := e.Entry
		cur.Token = ""
		return cur, false, nil
	}
	e := memEntry{
		Entry:     Entry{State: StateInFlight, Token: token, CreatedAt: now},
		expiresAt: now.Add(lease),
	}
	s.entries[key] = e
	return e.Entry, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, token string, payload []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Token != token || e.State != StateInFlight {
		return ErrClaimLost
	}
	e.State = StateDone
	e.Payload = append([]byte(nil), payload...)
	e.expiresAt = expiresAt
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.Token == token && e.State == StateInFlight {
		delete(s.entries, key)
	}
	return nil
}
