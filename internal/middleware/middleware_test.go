package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardhub/internal/domain"
	"cardhub/internal/session"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthenticate(t *testing.T) {
	sess := &session.Session{ID: "sid", User: domain.User{ID: 42, Role: domain.RoleCustomer}}

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		resolveErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing credentials",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authentication required",
		},
		{
			name:       "cookie session",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "cardhub_session", Value: "sid"}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer session",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sid") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown session",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sid") },
			resolveErr: apperrors.ErrSessionNotFound,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid session",
		},
		{
			name:       "expired session",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sid") },
			resolveErr: apperrors.ErrSessionExpired,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Session expired",
		},
		{
			name:       "revoked token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sid") },
			resolveErr: apperrors.ErrTokenRevoked,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Session expired",
		},
		{
			name:       "store failure",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sid") },
			resolveErr: io.ErrUnexpectedEOF,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(mockResolver)
			if tt.resolveErr != nil {
				resolver.On("Resolve", mock.Anything, "sid").Return(nil, tt.resolveErr)
			} else {
				resolver.On("Resolve", mock.Anything, "sid").Return(sess, nil)
			}
			mw := NewAuthMiddleware(resolver, "cardhub_session", nil)

			var seen *session.Session
			h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = SessionFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, w))
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, int64(42), seen.User.ID)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(domain.RoleAdmin)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	customer := &session.Session{User: domain.User{ID: 1, Role: domain.RoleCustomer}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(WithSession(req.Context(), customer)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := &session.Session{User: domain.User{ID: 2, Role: domain.RoleAdmin}}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(WithSession(req.Context(), admin)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionID_CookieWinsOverHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "c", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-cookie", SessionID(req, "c"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, SessionID(req, "c"))
}

func TestRateLimiter_MemoryCounter(t *testing.T) {
	counter := NewMemoryCounter()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return now }

	h := NewRateLimiter(counter, 2, time.Minute).Limit(okHandler())
	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000").Code)
	w := call("10.0.0.1:1001")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Other clients keep their own window.
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000").Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1003").Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyListAllowsNoOrigin(t *testing.T) {
	h := CORS(nil)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.False(t, OriginAllowed(nil, "http://localhost:3000"))
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			jsonError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf, logger.LevelDebug)
	h := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Len(t, seen, 36)
}

func TestLogging_ReportsUserFromInnerAuth(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf, logger.LevelDebug)

	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, "sid").
		Return(&session.Session{User: domain.User{ID: 77}}, nil)
	auth := NewAuthMiddleware(resolver, "c", nil)

	h := CorrelationID(NewLoggingMiddleware(log).Log(auth.Authenticate(okHandler())))
	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req.Header.Set("Authorization", "Bearer sid")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "HTTP Request", entry["message"])
	assert.Equal(t, float64(77), entry["user_id"])
	assert.Equal(t, float64(200), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}

type recordingSink struct {
	entries []*AuditEntry
}

func (s *recordingSink) Record(_ context.Context, e *AuditEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestAudit_RecordsMutationsOnly(t *testing.T) {
	sink := &recordingSink{}
	h := NewAuditMiddleware(sink, nil).Audit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cards", nil))
	assert.Empty(t, sink.entries)

	sess := &session.Session{User: domain.User{ID: 5}}
	req := httptest.NewRequest(http.MethodPost, "/api/cards/3/block", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithSession(req.Context(), sess)))

	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, "POST /api/cards/3/block", e.Action)
	assert.Equal(t, int64(5), e.UserID)
	assert.Equal(t, http.StatusCreated, e.StatusCode)
}

func TestLogAuditSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogAuditSink(logger.NewWithWriter("test", &buf, logger.LevelInfo))
	require.NoError(t, sink.Record(context.Background(), &AuditEntry{Action: "POST /x", UserID: 3, StatusCode: 200}))

	out := buf.String()
	assert.Contains(t, out, `"channel":"audit"`)
	assert.Contains(t, out, `"action":"POST /x"`)
}
