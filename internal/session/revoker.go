package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers bearer tokens that were logged out so a copied session
// cookie cannot keep using them before they expire upstream.
type Revoker interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisRevoker implements Revoker using Redis.
type RedisRevoker struct {
	client *redis.Client
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

// Revoke blacklists token until its expiry.
func (b *RedisRevoker) Revoke(ctx context.Context, token string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, "revoked:"+hashKey(token), "revoked", ttl).Err()
}

func (b *RedisRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, "revoked:"+hashKey(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// MemoryRevoker is the in-process Revoker.
type MemoryRevoker struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{tokens: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(ctx context.Context, token string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.now().Before(until) {
		return nil
	}
	m.tokens[hashKey(token)] = until
	return nil
}

func (m *MemoryRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := hashKey(token)
	until, ok := m.tokens[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.tokens, key)
		return false, nil
	}
	return true, nil
}

// Sweep drops entries whose tokens have expired. Tokens that are never
// checked again would otherwise stay in the map.
func (m *MemoryRevoker) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, until := range m.tokens {
		if !now.Before(until) {
			delete(m.tokens, k)
			n++
		}
	}
	return n
}
