package handler

import (
	"net/http"

	"cardhub/internal/checkout"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"
)

// CheckoutHandler exposes store purchases and card payments.
type CheckoutHandler struct {
	service   *checkout.Service
	sessions  *session.Manager
	validator *validator.Validator
	logger    logger.Logger
}

func NewCheckoutHandler(service *checkout.Service, sessions *session.Manager, val *validator.Validator, log logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, sessions: sessions, validator: val, logger: log}
}

// Purchase charges a cart to one of the customer's cards.
func (h *CheckoutHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())

	var cart checkout.Cart
	if !decodeAndValidate(w, r, h.validator, &cart) {
		return
	}

	receipt, err := h.service.Purchase(r.Context(), sess, cart)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Purchase", err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

// Pay records a payment against a card's outstanding balance.
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())

	var req checkout.PaymentRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	receipt, err := h.service.Pay(r.Context(), sess, req)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Payment", err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}
