package store

import (
	"context"
	"sync"
	"time"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// InMemoryCredentialStore holds credential metadata in process memory. Used
// in tests and in development mode where no database is configured.
type InMemoryCredentialStore struct {
	mu    sync.RWMutex
	creds []core.CredentialMetadata
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		creds: make([]core.CredentialMetadata, 0),
	}
}

func (s *InMemoryCredentialStore) Save(_ context.Context, meta core.CredentialMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = append(s.creds, meta)
	return nil
}

func (s *InMemoryCredentialStore) ListActive(_ context.Context) ([]core.CredentialMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]core.CredentialMetadata, 0)
	now := time.Now()

	for _, c := range s.creds {
		if c.ExpiresAt.After(now) {
			active = append(active, c)
		}
	}

	return active, nil
}

func (s *InMemoryCredentialStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var active []core.CredentialMetadata
	var deletedCount int64

	for _, c := range s.creds {
		if c.ExpiresAt.After(now) {
			active = append(active, c)
		} else {
			deletedCount++
		}
	}

	s.creds = active
	return deletedCount, nil
}
