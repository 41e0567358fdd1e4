// Package middleware provides shared HTTP middleware utilities.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore holds in-flight locks and finished responses.
type IdempotencyStore interface {
	// Lock claims key for owner; false when someone else holds it.
	Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock releases key only while owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
	// Load returns nil without error when nothing is stored.
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// RedisIdempotencyStore implements IdempotencyStore on Redis.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, owner, ttl).Result()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key, owner string) error {
	return unlockScript.Run(ctx, s.client, []string{key}, owner).Err()
}

func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, payload, ttl).Err()
}

type memoryValue struct {
	data    []byte
	expires time.Time
}

// MemoryIdempotencyStore is the single-process IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{values: make(map[string]memoryValue)}
}

func (s *MemoryIdempotencyStore) get(key string) ([]byte, bool) {
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	if !time.Now().Before(v.expires) {
		delete(s.values, key)
		return nil, false
	}
	return v.data, true
}

func (s *MemoryIdempotencyStore) Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.values[key] = memoryValue{data: []byte(owner), expires: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Unlock(ctx context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.get(key); ok && string(v) == owner {
		delete(s.values, key)
	}
	return nil
}

func (s *MemoryIdempotencyStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.get(key)
	return v, nil
}

func (s *MemoryIdempotencyStore) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memoryValue{data: payload, expires: time.Now().Add(ttl)}
	return nil
}

// IdempotencyMiddleware enforces Idempotency-Key usage for unsafe methods.
type IdempotencyMiddleware struct {
	store    IdempotencyStore
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	logger   logger.Logger
}

// NewIdempotencyMiddleware constructs an IdempotencyMiddleware with a TTL.
func NewIdempotencyMiddleware(store IdempotencyStore, ttl time.Duration, log logger.Logger) *IdempotencyMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	return &IdempotencyMiddleware{
		store:    store,
		ttl:      ttl,
		wait:     5 * time.Second,
		interval: 100 * time.Millisecond,
		logger:   log,
	}
}

// Require blocks duplicate POST/PUT/PATCH/DELETE requests with the same key.
// It expects the header: Idempotency-Key. Keys are scoped per user.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut &&
			r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key header required")
			return
		}
		if len(key) > 128 {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}

		userID, _ := UserIDFromContext(r.Context())
		scope := fmt.Sprintf("%d:%s:%s:%s", userID, r.Method, r.URL.Path, key)
		dataKey := "idempotency:data:" + scope
		lockKey := "idempotency:lock:" + scope

		// Fast path: cached response exists
		if m.replayCached(w, r, dataKey) {
			return
		}

		requestID := RequestIDFromContext(r.Context())
		// X-Request-ID comes from the client, so the lock owner is minted here.
		owner := uuid.NewString()

		ok, err := m.store.Lock(r.Context(), lockKey, owner, m.ttl)
		if err != nil {
			m.logger.Error("Idempotency lock failed", map[string]interface{}{
				"error":      err.Error(),
				"request_id": requestID,
			})
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if !ok {
			// Another request is in flight; wait for its result so double
			// clicks get the same answer instead of a conflict.
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(m.interval):
				}
				if m.replayCached(w, r, dataKey) {
					return
				}
			}

			jsonError(w, http.StatusConflict, apperrors.ErrDuplicateRequest.Error())
			return
		}
		defer func() { _ = m.store.Unlock(context.WithoutCancel(r.Context()), lockKey, owner) }()

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		// Only successful answers are replayed; a failed attempt may be retried.
		if cw.status >= 200 && cw.status < 300 {
			if err := m.cacheResponse(r, dataKey, cw); err != nil {
				m.logger.Warn("Idempotency response not cached", map[string]interface{}{
					"error":      err.Error(),
					"request_id": requestID,
				})
			}
		}
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	payload, err := m.store.Load(r.Context(), dataKey)
	if err != nil || payload == nil {
		return false
	}

	var cr capturedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || len(cw.buf) == 0 || cw.truncated {
		return nil
	}

	payload, err := json.Marshal(capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	})
	if err != nil {
		return err
	}
	return m.store.Store(r.Context(), dataKey, payload, m.ttl)
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space > 0 {
		n := len(p)
		if n > space {
			n = space
			w.truncated = true
		}
		w.buf = append(w.buf, p[:n]...)
	} else if len(p) > 0 {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}
