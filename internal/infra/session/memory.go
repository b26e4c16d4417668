// Package session keeps in-progress chat dialogs between updates.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
)

// MemoryStore expires sessions lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]domain.Session
}

func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]domain.Session),
	}
}

func (s *MemoryStore) Get(ctx context.Context, ownerID int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ownerID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, ownerID)
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Put(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	if stored.ExpiresAt.IsZero() && s.ttl > 0 {
		stored.ExpiresAt = s.now().Add(s.ttl)
	}
	s.sessions[sess.OwnerID] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, ownerID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
