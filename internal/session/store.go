package session

import (
	"context"
	"sync"
	"time"
)

// Store persists encoded sessions by token. Get reports found=false for
// missing and expired sessions; Delete of a missing token is not an error.
type Store interface {
	Get(ctx context.Context, token string) (data []byte, found bool, err error)
	Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error
	Delete(ctx context.Context, token string) error
}

// ExpiringStore is a Store that also reports when a found session expires.
type ExpiringStore interface {
	Store
	GetWithExpiry(ctx context.Context, token string) (data []byte, expiresAt time.Time, found bool, err error)
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	data, _, found, err := m.GetWithExpiry(ctx, token)
	return data, found, err
}

func (m *MemoryStore) GetWithExpiry(_ context.Context, token string) ([]byte, time.Time, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[token]
	m.mu.RUnlock()
	if !ok || !e.expiresAt.After(m.now()) {
		return nil, time.Time{}, false, nil
	}
	return e.data, e.expiresAt, true, nil
}

func (m *MemoryStore) Set(_ context.Context, token string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = memoryEntry{data: append([]byte(nil), data...), expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

// DeleteExpired drops expired sessions and returns how many were removed.
func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for token, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, token)
			n++
		}
	}
	return n, nil
}
