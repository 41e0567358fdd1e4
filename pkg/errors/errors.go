// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Common errors
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUpstreamUnavailable = errors.New("card api unavailable")
	ErrInvalidResponse     = errors.New("invalid response from card api")
	ErrDuplicateRequest    = errors.New("duplicate request in progress")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrTokenRevoked    = errors.New("token revoked")

	// Portal errors
	ErrCustomerProfileMissing = errors.New("customer profile not completed")
	ErrCardNotOwned           = errors.New("card does not belong to customer")

	// Checkout errors
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrCardNotActive         = errors.New("card is not active")
	ErrInsufficientCredit    = errors.New("insufficient available credit")
	ErrPaymentExceedsBalance = errors.New("payment exceeds outstanding balance")
)

// APIError is a non-2xx answer from the remote card API.
type APIError struct {
	Status      int
	Message     string
	FieldErrors map[string]string
}

func (e *APIError) Error() string {
	if len(e.FieldErrors) > 0 {
		fields := make([]string, 0, len(e.FieldErrors))
		for f := range e.FieldErrors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%s: %s", f, e.FieldErrors[f]))
		}
		return fmt.Sprintf("card api %d: %s", e.Status, strings.Join(parts, "; "))
	}
	if e.Message == "" {
		return fmt.Sprintf("card api %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("card api %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match an APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUpstreamUnavailable:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
