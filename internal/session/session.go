// Package session keeps the portal's server-side view of a logged-in user:
// the upstream bearer token, the user profile and the linked customer
// profile. A Session is created by Manager.Login and destroyed by
// Manager.Logout; handlers receive it through the request context and never
// read it from package state.
package session

import (
	"encoding/hex"
	"time"

	"cardhub/internal/domain"

	"golang.org/x/crypto/blake2b"
)

type Session struct {
	ID        string           `json:"id"`
	Token     string           `json:"token"`
	User      domain.User      `json:"user"`
	Customer  *domain.Customer `json:"customer,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CustomerID is the id of the linked customer profile, if the user has one.
func (s *Session) CustomerID() (int64, bool) {
	if s.Customer == nil || s.Customer.ID == 0 {
		return 0, false
	}
	return s.Customer.ID, true
}

func (s *Session) IsAdmin() bool {
	return s.User.IsAdmin()
}

// hashKey keeps raw session ids and tokens out of the key space.
func hashKey(v string) string {
	sum := blake2b.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
