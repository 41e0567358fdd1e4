package handler

import (
	"net/http"
	"strconv"
	"strings"

	"cardhub/internal/apiclient"
	"cardhub/internal/dashboard"
	"cardhub/internal/domain"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"

	"github.com/gorilla/mux"
)

// CardHandler manages the customer's own cards.
type CardHandler struct {
	service   *dashboard.Service
	sessions  *session.Manager
	validator *validator.Validator
	logger    logger.Logger
}

func NewCardHandler(service *dashboard.Service, sessions *session.Manager, val *validator.Validator, log logger.Logger) *CardHandler {
	return &CardHandler{service: service, sessions: sessions, validator: val, logger: log}
}

type applyCardRequest struct {
	CardType       domain.CardType `json:"cardType" validate:"required,oneof=SILVER GOLD PLATINUM DIAMOND"`
	CardHolderName string          `json:"cardHolderName" validate:"required,max=100"`
}

type blockCardRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// List returns the session customer's cards.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	cards, err := h.service.Cards(r.Context(), sess)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Card list", err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

// Apply requests a new card for the session customer.
func (h *CardHandler) Apply(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	customerID, ok := sess.CustomerID()
	if !ok {
		respondServiceError(w, h.logger, "Card application", apperrors.ErrCustomerProfileMissing)
		return
	}

	var req applyCardRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	card, err := h.sessions.Client(sess).IssueCard(r.Context(), &apiclient.IssueCardRequest{
		CustomerID:     customerID,
		CardType:       req.CardType,
		CardHolderName: strings.TrimSpace(req.CardHolderName),
	})
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Card application", err)
		return
	}
	h.service.Invalidate(r.Context(), sess.User.ID)

	h.logger.Info("Card issued", map[string]interface{}{
		"user_id":   sess.User.ID,
		"card_id":   card.ID,
		"card_type": card.CardType,
	})
	respondJSON(w, http.StatusCreated, card)
}

// Block blocks one of the customer's cards. The body may carry a reason.
func (h *CardHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req blockCardRequest
	if r.ContentLength > 0 && !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		req.Reason = "Blocked by cardholder"
	}
	h.mutate(w, r, "Card block", func(api *apiclient.Client, id int64) (*domain.Card, error) {
		return api.BlockCard(r.Context(), id, req.Reason)
	})
}

func (h *CardHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Card unblock", func(api *apiclient.Client, id int64) (*domain.Card, error) {
		return api.UnblockCard(r.Context(), id)
	})
}

func (h *CardHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Card activation", func(api *apiclient.Client, id int64) (*domain.Card, error) {
		return api.ActivateCard(r.Context(), id)
	})
}

// mutate applies op to a card. Customers may only touch their own cards;
// administrators may touch any card.
func (h *CardHandler) mutate(w http.ResponseWriter, r *http.Request, action string, op func(*apiclient.Client, int64) (*domain.Card, error)) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	if !sess.IsAdmin() {
		if _, err := h.service.OwnedCard(r.Context(), sess, id); err != nil {
			expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
			respondServiceError(w, h.logger, action, err)
			return
		}
	}

	card, err := op(h.sessions.Client(sess), id)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, action, err)
		return
	}
	if sess.IsAdmin() {
		h.service.InvalidateAll(r.Context())
	} else {
		h.service.Invalidate(r.Context(), sess.User.ID)
	}

	h.logger.Info(action+" completed", map[string]interface{}{
		"user_id": sess.User.ID,
		"card_id": id,
		"status":  card.Status,
	})
	respondJSON(w, http.StatusOK, card)
}
