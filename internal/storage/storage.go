// Package storage provides the durable key/value records that hold visitor
// state between requests and across restarts.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("storage: record not found")

// Storage persists opaque values by key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps records in process memory. Records do not survive restarts.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStorage creates an in-memory storage. A zero ttl keeps records forever.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !rec.expiresAt.IsZero() && m.now().After(rec.expiresAt) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return out, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	rec := memoryRecord{value: make([]byte, len(value))}
	copy(rec.value, value)
	if m.ttl > 0 {
		rec.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.records[key] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}
