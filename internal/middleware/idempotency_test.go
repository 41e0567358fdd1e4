package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardhub/internal/domain"
	"cardhub/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idempotentRequest(key string, userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if userID != 0 {
		sess := &session.Session{User: domain.User{ID: userID}}
		req = req.WithContext(WithSession(req.Context(), sess))
	}
	return req
}

func countingHandler(calls *int32, delay time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
}

func TestIdempotency_RequiresKey(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	var calls int32
	w := httptest.NewRecorder()
	mw.Require(countingHandler(&calls, 0)).ServeHTTP(w, idempotentRequest("", 1))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestIdempotency_GetPassesThrough(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	var calls int32
	w := httptest.NewRecorder()
	mw.Require(countingHandler(&calls, 0)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cards", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	var calls int32
	h := mw.Require(countingHandler(&calls, 0))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest("k1", 7))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest("k1", 7))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"id":1}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	var calls int32
	h := mw.Require(countingHandler(&calls, 0))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest("shared", 1))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest("shared", 2))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_FailuresAreNotReplayed(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	var calls int32
	h := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		jsonError(w, http.StatusBadGateway, "upstream down")
	}))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest("k", 1))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, idempotentRequest("k", 1))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIdempotency_ConcurrentDuplicateWaitsForResult(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	mw.interval = 10 * time.Millisecond
	var calls int32
	h := mw.Require(countingHandler(&calls, 200*time.Millisecond))

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 50 * time.Millisecond)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, idempotentRequest("double-click", 3))
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated}, codes)
}

func TestIdempotency_SharedRequestIDDoesNotBypassLock(t *testing.T) {
	mw := NewIdempotencyMiddleware(NewMemoryIdempotencyStore(), time.Minute, nil)
	mw.interval = 10 * time.Millisecond
	var calls int32
	h := CorrelationID(mw.Require(countingHandler(&calls, 200*time.Millisecond)))

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 50 * time.Millisecond)
			req := idempotentRequest("retry", 5)
			req.Header.Set("X-Request-ID", "client-retry-abc")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated}, codes)
}

func TestMemoryIdempotencyStore_UnlockChecksOwner(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	ctx := context.Background()

	ok, err := store.Lock(ctx, "lock", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Unlock(ctx, "lock", "second"))
	ok, err = store.Lock(ctx, "lock", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock released by a non-owner")

	require.NoError(t, store.Unlock(ctx, "lock", "first"))
	ok, err = store.Lock(ctx, "lock", "second", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotency_ConflictWhenWaitExpires(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Minute, nil)
	mw.wait = 30 * time.Millisecond
	mw.interval = 10 * time.Millisecond

	ok, err := store.Lock(context.Background(), "idempotency:lock:4:POST:/api/purchases:busy", "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var calls int32
	w := httptest.NewRecorder()
	mw.Require(countingHandler(&calls, 0)).ServeHTTP(w, idempotentRequest("busy", 4))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "k", []byte("v"), 20*time.Millisecond))

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(40 * time.Millisecond)
	got, err = store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyMiddleware_RedisConcurrentRequests(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { _ = rdb.Close() })

	mw := NewIdempotencyMiddleware(NewRedisIdempotencyStore(rdb), 10*time.Second, nil)
	var calls int32
	wrapped := mw.Require(countingHandler(&calls, time.Second))

	key := "test-key-" + time.Now().Format("150405.000000")
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 100 * time.Millisecond)
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, idempotentRequest(key, 9))
			assert.Equal(t, http.StatusCreated, w.Code)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
