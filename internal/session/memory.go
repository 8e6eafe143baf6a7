package session

import (
	"context"
	"sync"
	"time"

	"github.com/intranet/auth-server-go/internal/model"
)

const memoryCleanupInterval = time.Minute

type memoryEntry struct {
	session   model.Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Sessions do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	now         func() time.Time
	lastCleanup time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]memoryEntry),
		now:         now,
		lastCleanup: now(),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanup()

	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, s *model.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{session: *s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) cleanup() {
	now := m.now()
	if now.Sub(m.lastCleanup) < memoryCleanupInterval {
		return
	}
	m.lastCleanup = now

	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}
