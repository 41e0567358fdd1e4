package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"
)

// CookieSettings controls the session cookie.
type CookieSettings struct {
	Name   string
	Secure bool
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	sessions  *session.Manager
	client    *apiclient.Client
	validator *validator.Validator
	cookie    CookieSettings
	logger    logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions *session.Manager, client *apiclient.Client, val *validator.Validator, cookie CookieSettings, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:  sessions,
		client:    client,
		validator: val,
		cookie:    cookie,
		logger:    log,
	}
}

type sessionResponse struct {
	SessionID string           `json:"sessionId"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      domain.User      `json:"user"`
	Customer  *domain.Customer `json:"customer,omitempty"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt,
		User:      s.User,
		Customer:  s.Customer,
	}
}

// Login authenticates against the card API and opens a portal session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	sess, err := h.sessions.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			h.logger.Warn("Login rejected", map[string]interface{}{"username": req.Username})
		}
		respondServiceError(w, h.logger, "Login", err)
		return
	}

	h.setCookie(w, sess.ID, sess.ExpiresAt)
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

// Register creates an account. The user logs in separately afterwards.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req apiclient.RegisterRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	resp, err := h.client.Register(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, "Registration", err)
		return
	}

	h.logger.Info("User registered", map[string]interface{}{
		"user_id": resp.User.ID,
		"role":    resp.User.Role,
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{"user": resp.User})
}

// Logout closes the session and clears the cookie. It succeeds for unknown
// sessions too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := middleware.SessionID(r, h.cookie.Name)
	if err := h.sessions.Logout(r.Context(), id); err != nil {
		h.logger.Error("Logout failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	h.clearCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me returns the session user. With ?refresh=true the token is revalidated
// and the customer profile reloaded first.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		refreshed, err := h.sessions.Refresh(r.Context(), sess.ID)
		if err != nil {
			if errors.Is(err, apperrors.ErrSessionExpired) {
				h.clearCookie(w)
			}
			respondServiceError(w, h.logger, "Session refresh", err)
			return
		}
		sess = refreshed
	}

	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// expireOnUnauthorized ends the session when the card API rejected its
// token, so the next request gets a clean 401.
func expireOnUnauthorized(ctx context.Context, sessions *session.Manager, sess *session.Session, err error, log logger.Logger) {
	if sessions == nil || sess == nil || !errors.Is(err, apperrors.ErrUnauthorized) {
		return
	}
	if terr := sessions.Expire(context.WithoutCancel(ctx), sess); terr != nil {
		log.Warn("Session expiry failed", map[string]interface{}{
			"user_id": sess.User.ID,
			"error":   terr.Error(),
		})
	}
}
