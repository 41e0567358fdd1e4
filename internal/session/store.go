package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"cardhub/pkg/cache"
	apperrors "cardhub/pkg/errors"
)

// Store persists sessions until their TTL runs out.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get returns errors.ErrSessionNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON under session:<blake2b(id)>.
type RedisStore struct {
	cache *cache.RedisCache
}

func NewRedisStore(c *cache.RedisCache) *RedisStore {
	return &RedisStore{cache: c}
}

func (r *RedisStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.ErrSessionExpired
	}
	return r.cache.Set(ctx, redisKey(s.ID), s, ttl)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.cache.Get(ctx, redisKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, redisKey(id))
}

func redisKey(id string) string {
	return "session:" + hashKey(id)
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.ErrSessionExpired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[hashKey(s.ID)] = memoryEntry{session: *s, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	key := hashKey(id)

	m.mu.RLock()
	entry, ok := m.sessions[key]
	m.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	if !m.now().Before(entry.expires) {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, apperrors.ErrSessionNotFound
	}
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, hashKey(id))
	return nil
}

// Sweep drops expired entries. It is called periodically by the portal.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}
