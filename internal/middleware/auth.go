// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cardhub/internal/domain"
	"cardhub/internal/session"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxSessionKey     contextKey = "session"
	ctxRequestInfoKey contextKey = "request_info"
)

// SessionResolver looks up live sessions by id.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*session.Session, error)
}

// AuthMiddleware resolves the portal session and injects it into the context.
type AuthMiddleware struct {
	sessions   SessionResolver
	cookieName string
	logger     logger.Logger
}

// NewAuthMiddleware constructs an AuthMiddleware reading the session id from
// cookieName or an "Authorization: Bearer <id>" header.
func NewAuthMiddleware(sessions SessionResolver, cookieName string, log logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuthMiddleware{sessions: sessions, cookieName: cookieName, logger: log}
}

// Authenticate enforces a live session and populates it on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := SessionID(r, m.cookieName)
		if id == "" {
			jsonError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		sess, err := m.sessions.Resolve(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrSessionNotFound):
				jsonError(w, http.StatusUnauthorized, "Invalid session")
			case errors.Is(err, apperrors.ErrSessionExpired), errors.Is(err, apperrors.ErrTokenRevoked):
				jsonError(w, http.StatusUnauthorized, "Session expired")
			default:
				m.logger.Error("Session lookup failed", map[string]interface{}{
					"error":      err.Error(),
					"request_id": RequestIDFromContext(r.Context()),
				})
				jsonError(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		if info := requestInfoFrom(r.Context()); info != nil {
			info.userID = sess.User.ID
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// RequireRole rejects sessions whose user lacks role. It must run after
// Authenticate.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				jsonError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if sess.User.Role != role {
				jsonError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionID extracts the session id from the cookie or bearer header.
func SessionID(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// WithSession stores sess on ctx.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, sess)
}

// SessionFromContext returns the authenticated session from context.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(ctxSessionKey).(*session.Session)
	return s, ok && s != nil
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return 0, false
	}
	return s.User.ID, true
}
