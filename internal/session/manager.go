package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager owns the session lifecycle.
type Manager struct {
	client  *apiclient.Client
	store   Store
	revoker Revoker
	ttl     time.Duration
	logger  logger.Logger
	now     func() time.Time
}

func NewManager(client *apiclient.Client, store Store, revoker Revoker, ttl time.Duration, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		client:  client,
		store:   store,
		revoker: revoker,
		ttl:     ttl,
		logger:  log,
		now:     time.Now,
	}
}

// Client returns an API client that authenticates as the session's user.
func (m *Manager) Client(s *Session) *apiclient.Client {
	return m.client.WithToken(s.Token)
}

// Login authenticates against the card API and opens a session. The session
// lives until the token expires or the configured TTL, whichever is sooner.
func (m *Manager) Login(ctx context.Context, req *apiclient.LoginRequest) (*Session, error) {
	resp, err := m.client.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	if exp, ok := tokenExpiry(resp.Token); ok {
		if !exp.After(now) {
			return nil, fmt.Errorf("%w: upstream issued an expired token", apperrors.ErrSessionExpired)
		}
		if exp.Before(expiresAt) {
			expiresAt = exp
		}
	}

	s := &Session{
		ID:        uuid.NewString(),
		Token:     resp.Token,
		User:      resp.User,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if !s.User.IsAdmin() {
		customer, err := m.Client(s).GetCustomerByUser(ctx, s.User.ID)
		if err != nil {
			m.logger.Warn("Customer profile lookup failed at login", map[string]interface{}{
				"user_id": s.User.ID,
				"error":   err.Error(),
			})
		}
		s.Customer = customer
	}

	if err := m.store.Save(ctx, s, expiresAt.Sub(now)); err != nil {
		return nil, apperrors.Wrap(err, "failed to save session")
	}

	m.logger.Info("Session opened", map[string]interface{}{
		"user_id":    s.User.ID,
		"role":       s.User.Role,
		"expires_at": s.ExpiresAt,
	})
	return s, nil
}

// Resolve returns the live session for id.
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Expired(m.now()) {
		_ = m.store.Delete(ctx, id)
		return nil, apperrors.ErrSessionExpired
	}

	revoked, err := m.revoker.IsRevoked(ctx, s.Token)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to check token revocation")
	}
	if revoked {
		_ = m.store.Delete(ctx, id)
		return nil, apperrors.ErrTokenRevoked
	}
	return s, nil
}

// Update stores changes to a live session, keeping its expiry.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s, s.ExpiresAt.Sub(m.now()))
}

// Logout closes the session. Unknown ids are not an error. The upstream
// logout call is best effort; the token is revoked locally either way.
func (m *Manager) Logout(ctx context.Context, id string) error {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.Client(s).Logout(ctx); err != nil {
		m.logger.Warn("Upstream logout failed", map[string]interface{}{
			"user_id": s.User.ID,
			"error":   err.Error(),
		})
	}
	return m.teardown(ctx, s)
}

// Refresh revalidates the token with the card API and reloads the cached
// customer profile. A 401 from upstream ends the session.
func (m *Manager) Refresh(ctx context.Context, id string) (*Session, error) {
	s, err := m.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	api := m.Client(s)
	if err := api.ValidateToken(ctx); err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			if terr := m.teardown(ctx, s); terr != nil {
				m.logger.Error("Session teardown failed", map[string]interface{}{"error": terr.Error()})
			}
			return nil, apperrors.ErrSessionExpired
		}
		return nil, err
	}

	if !s.User.IsAdmin() {
		customer, err := api.GetCustomerByUser(ctx, s.User.ID)
		if err != nil {
			return nil, err
		}
		s.Customer = customer
		if err := m.Update(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Expire ends a session whose token the card API rejected mid-request.
func (m *Manager) Expire(ctx context.Context, s *Session) error {
	return m.teardown(ctx, s)
}

func (m *Manager) teardown(ctx context.Context, s *Session) error {
	if err := m.revoker.Revoke(ctx, s.Token, s.ExpiresAt); err != nil {
		return apperrors.Wrap(err, "failed to revoke token")
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return apperrors.Wrap(err, "failed to delete session")
	}
	m.logger.Info("Session closed", map[string]interface{}{"user_id": s.User.ID})
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// portal never holds the card API's signing key and only needs the expiry
// to bound the session.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// NewCustomerSession is a convenience for tests and tools that need a
// session without going through Login.
func NewCustomerSession(token string, user domain.User, customer *domain.Customer, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		Customer:  customer,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
