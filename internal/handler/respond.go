// Package handler provides the portal's HTTP handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if valErrs := val.ValidateStructured(dst); valErrs != nil {
		respondValidationErrors(w, valErrs)
		return false
	}
	return true
}

// respondServiceError maps errors from the session, dashboard, checkout and
// API client layers onto HTTP answers. Upstream 5xx and transport failures
// surface as 502.
func respondServiceError(w http.ResponseWriter, log logger.Logger, action string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, apperrors.ErrSessionNotFound),
		errors.Is(err, apperrors.ErrSessionExpired),
		errors.Is(err, apperrors.ErrTokenRevoked):
		respondError(w, http.StatusUnauthorized, "Session expired")
	case errors.Is(err, apperrors.ErrCardNotOwned):
		respondError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, apperrors.ErrCustomerProfileMissing):
		respondError(w, http.StatusConflict, "Complete your customer profile first")
	case errors.Is(err, apperrors.ErrEmptyCart), errors.Is(err, apperrors.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrCardNotActive),
		errors.Is(err, apperrors.ErrInsufficientCredit),
		errors.Is(err, apperrors.ErrPaymentExceedsBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		respondError(w, http.StatusForbidden, "Insufficient permissions")
	default:
		if apiErr, ok := apperrors.AsAPIError(err); ok {
			respondAPIError(w, log, action, apiErr)
			return
		}
		if errors.Is(err, apperrors.ErrUpstreamUnavailable) || errors.Is(err, apperrors.ErrInvalidResponse) {
			log.Error(action+" failed", map[string]interface{}{"error": err.Error()})
			respondError(w, http.StatusBadGateway, "Card service unavailable")
			return
		}
		log.Error(action+" failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, action+" failed")
	}
}

func respondAPIError(w http.ResponseWriter, log logger.Logger, action string, apiErr *apperrors.APIError) {
	switch {
	case apiErr.Status == http.StatusUnauthorized:
		respondError(w, http.StatusUnauthorized, "Session expired")
	case apiErr.Status == http.StatusForbidden:
		respondError(w, http.StatusForbidden, "Insufficient permissions")
	case apiErr.Status == http.StatusNotFound:
		respondError(w, http.StatusNotFound, messageOr(apiErr.Message, "Not found"))
	case apiErr.Status >= http.StatusInternalServerError:
		log.Error(action+" failed", map[string]interface{}{
			"error":           apiErr.Error(),
			"upstream_status": apiErr.Status,
		})
		respondError(w, http.StatusBadGateway, "Card service unavailable")
	case len(apiErr.FieldErrors) > 0:
		respondValidationErrors(w, apiErr.FieldErrors)
	default:
		status := apiErr.Status
		if status != http.StatusConflict && status != http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		respondError(w, status, messageOr(apiErr.Message, action+" failed"))
	}
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func queryInt64(r *http.Request, key string) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
