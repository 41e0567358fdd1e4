package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process LRU with per-entry TTL. Values are stored as
// JSON so callers see the same copy semantics as with RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
}

type memoryItem struct {
	key       string
	data      []byte
	expiresAt time.Time
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &MemoryCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return ErrMiss
	}
	item := elem.Value.(*memoryItem)
	if !c.now().Before(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		return ErrMiss
	}
	c.lru.MoveToFront(elem)
	data := item.data
	c.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item := &memoryItem{key: key, data: data, expiresAt: c.now().Add(expiration)}
	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.lru.PushFront(item)
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if elem, ok := c.items[k]; ok {
			c.removeElement(elem)
		}
	}
	return nil
}

func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, elem := range c.items {
		if strings.HasPrefix(k, prefix) {
			c.removeElement(elem)
		}
	}
	return nil
}

// Len is the number of entries, expired ones included until touched.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	delete(c.items, item.key)
	c.lru.Remove(elem)
}
