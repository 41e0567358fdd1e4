package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"cardhub/internal/domain"
	apperrors "cardhub/pkg/errors"
)

// LoginRequest captures credentials for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest captures the fields required to create a portal account.
type RegisterRequest struct {
	Username  string      `json:"username" validate:"required,min=3,max=50"`
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required,min=6"`
	FirstName string      `json:"firstName" validate:"required,max=100"`
	LastName  string      `json:"lastName" validate:"required,max=100"`
	Phone     string      `json:"phone" validate:"required,phone_digits"`
	Role      domain.Role `json:"role" validate:"required,oneof=CUSTOMER ADMIN"`
}

// AuthResponse is returned by login and, for some deployments, register.
type AuthResponse struct {
	Token string      `json:"token"`
	Type  string      `json:"type,omitempty"`
	User  domain.User `json:"user"`
}

// Login exchanges credentials for a bearer token and the user profile.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &resp); err != nil {
		if apiErr, ok := apperrors.AsAPIError(err); ok &&
			(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	if resp.Token == "" || resp.User.ID == 0 {
		return nil, fmt.Errorf("%w: login response missing token or user", apperrors.ErrInvalidResponse)
	}
	return &resp, nil
}

// Register creates an account. The token in the response may be empty when
// the API requires a separate login.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateToken checks the client's bearer token with the API.
func (c *Client) ValidateToken(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/auth/validate", nil, nil, nil)
}

// Logout tells the API the client's token is no longer in use.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
}
