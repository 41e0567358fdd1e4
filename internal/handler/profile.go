package handler

import (
	"net/http"
	"strings"

	"cardhub/internal/dashboard"
	"cardhub/internal/domain"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"
)

// ProfileHandler reads and saves the customer profile linked to the user.
type ProfileHandler struct {
	sessions  *session.Manager
	dashboard *dashboard.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewProfileHandler(sessions *session.Manager, dash *dashboard.Service, val *validator.Validator, log logger.Logger) *ProfileHandler {
	return &ProfileHandler{sessions: sessions, dashboard: dash, validator: val, logger: log}
}

type profileResponse struct {
	User     domain.User      `json:"user"`
	Customer *domain.Customer `json:"customer"`
	Complete bool             `json:"complete"`
}

// Get returns the user and the cached customer profile, if any.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	_, complete := sess.CustomerID()
	respondJSON(w, http.StatusOK, profileResponse{
		User:     sess.User,
		Customer: sess.Customer,
		Complete: complete,
	})
}

// Update creates the customer profile on first save and updates it after.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())

	var req domain.Customer
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.UserID = sess.User.ID

	var existingID int64
	if id, ok := sess.CustomerID(); ok {
		existingID = id
		req.Status = sess.Customer.Status
	}
	req.ID = existingID

	saved, created, err := h.sessions.Client(sess).SaveCustomer(r.Context(), existingID, &req)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Profile save", err)
		return
	}

	sess.Customer = saved
	if err := h.sessions.Update(r.Context(), sess); err != nil {
		h.logger.Error("Session update after profile save failed", map[string]interface{}{
			"user_id": sess.User.ID,
			"error":   err.Error(),
		})
	}
	h.dashboard.Invalidate(r.Context(), sess.User.ID)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, profileResponse{User: sess.User, Customer: saved, Complete: true})
}
