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
	"cardhub/pkg/logger"
	"cardhub/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const (
	defaultAdminPageSize = 20
	maxAdminPageSize     = 200
)

// AdminHandler serves the administrator screens. Routes are mounted behind
// RequireRole(ADMIN); the card API enforces the role again.
type AdminHandler struct {
	service   *dashboard.Service
	sessions  *session.Manager
	validator *validator.Validator
	logger    logger.Logger
}

func NewAdminHandler(service *dashboard.Service, sessions *session.Manager, val *validator.Validator, log logger.Logger) *AdminHandler {
	return &AdminHandler{service: service, sessions: sessions, validator: val, logger: log}
}

type limitRequest struct {
	Limit decimal.Decimal `json:"limit" validate:"required,gt=0"`
}

type statusRequest struct {
	Status domain.CustomerStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE BLOCKED"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	view, err := h.service.AdminDashboard(r.Context(), sess)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Admin dashboard", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) Reports(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	report, err := h.service.Report(r.Context(), sess)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Reports", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Customers lists customers. ?keyword= searches, ?status= filters.
func (h *AdminHandler) Customers(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	api := h.sessions.Client(sess)
	q := r.URL.Query()

	var (
		result interface{}
		err    error
	)
	switch {
	case strings.TrimSpace(q.Get("keyword")) != "":
		result, err = api.SearchCustomers(r.Context(), strings.TrimSpace(q.Get("keyword")), pageRequest(r))
	case q.Get("status") != "":
		result, err = api.CustomersByStatus(r.Context(), domain.CustomerStatus(strings.ToUpper(q.Get("status"))))
	default:
		result, err = api.ListCustomers(r.Context(), pageRequest(r))
	}
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Customer list", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) UpdateCustomerStatus(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	customer, err := h.sessions.Client(sess).UpdateCustomerStatus(r.Context(), id, req.Status)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Customer status update", err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info("Customer status updated", map[string]interface{}{
		"admin_id":    sess.User.ID,
		"customer_id": id,
		"status":      req.Status,
	})
	respondJSON(w, http.StatusOK, customer)
}

// UpdateCustomer replaces a customer's profile fields.
func (h *AdminHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.Customer
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	req.ID = id
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	customer, err := h.sessions.Client(sess).UpdateCustomer(r.Context(), id, &req)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Customer update", err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info("Customer updated", map[string]interface{}{
		"admin_id":    sess.User.ID,
		"customer_id": id,
	})
	respondJSON(w, http.StatusOK, customer)
}

func (h *AdminHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Client(sess).DeleteCustomer(r.Context(), id); err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Customer deletion", err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info("Customer deleted", map[string]interface{}{
		"admin_id":    sess.User.ID,
		"customer_id": id,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// IssueCard issues a card to any customer.
func (h *AdminHandler) IssueCard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	var req apiclient.IssueCardRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	req.CardHolderName = strings.TrimSpace(req.CardHolderName)

	card, err := h.sessions.Client(sess).IssueCard(r.Context(), &req)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Card issuance", err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info("Card issued", map[string]interface{}{
		"admin_id":    sess.User.ID,
		"customer_id": req.CustomerID,
		"card_id":     card.ID,
	})
	respondJSON(w, http.StatusCreated, card)
}

// Cards lists cards. ?status= and ?type= filter.
func (h *AdminHandler) Cards(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	api := h.sessions.Client(sess)
	q := r.URL.Query()

	var (
		result interface{}
		err    error
	)
	switch {
	case q.Get("status") != "":
		result, err = api.CardsByStatus(r.Context(), domain.CardStatus(strings.ToUpper(q.Get("status"))))
	case q.Get("type") != "":
		result, err = api.CardsByType(r.Context(), domain.CardType(strings.ToUpper(q.Get("type"))))
	default:
		result, err = api.ListCards(r.Context(), pageRequest(r))
	}
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Card list", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) UpdateCreditLimit(w http.ResponseWriter, r *http.Request) {
	h.updateLimit(w, r, "Credit limit update", func(api *apiclient.Client, id int64, limit decimal.Decimal) (*domain.Card, error) {
		return api.UpdateCreditLimit(r.Context(), id, limit)
	})
}

func (h *AdminHandler) UpdateDailyLimit(w http.ResponseWriter, r *http.Request) {
	h.updateLimit(w, r, "Daily limit update", func(api *apiclient.Client, id int64, limit decimal.Decimal) (*domain.Card, error) {
		return api.UpdateDailyLimit(r.Context(), id, limit)
	})
}

func (h *AdminHandler) updateLimit(w http.ResponseWriter, r *http.Request, action string, op func(*apiclient.Client, int64, decimal.Decimal) (*domain.Card, error)) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req limitRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	card, err := op(h.sessions.Client(sess), id, req.Limit)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, action, err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info(action+" completed", map[string]interface{}{
		"admin_id": sess.User.ID,
		"card_id":  id,
		"limit":    req.Limit.String(),
	})
	respondJSON(w, http.StatusOK, card)
}

// Transactions returns one page of transactions with the ledger totals of
// the same filter over the full set. ?cardId= ?customerId= ?type= ?status=
// ?keyword= ?from= ?to= narrow both.
func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	q := r.URL.Query()

	filter := apiclient.TransactionFilter{
		CardID:     queryInt64(r, "cardId"),
		CustomerID: queryInt64(r, "customerId"),
		Type:       domain.TransactionType(strings.ToUpper(q.Get("type"))),
		Status:     domain.TransactionStatus(strings.ToUpper(q.Get("status"))),
		Keyword:    strings.TrimSpace(q.Get("keyword")),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}

	view, err := h.service.AdminTransactions(r.Context(), sess, filter, pageRequest(r))
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Transaction list", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	txn, err := h.sessions.Client(sess).ReverseTransaction(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Transaction reversal", err)
		return
	}
	h.service.InvalidateAll(r.Context())
	h.logger.Info("Transaction reversed", map[string]interface{}{
		"admin_id":       sess.User.ID,
		"transaction_id": id,
	})
	respondJSON(w, http.StatusOK, txn)
}

func pageRequest(r *http.Request) apiclient.PageRequest {
	size := queryInt(r, "size", defaultAdminPageSize)
	if size <= 0 || size > maxAdminPageSize {
		size = defaultAdminPageSize
	}
	q := r.URL.Query()
	dir := strings.ToUpper(q.Get("sortDir"))
	if dir != "ASC" && dir != "DESC" {
		dir = ""
	}
	return apiclient.PageRequest{
		Page:    queryInt(r, "page", 0),
		Size:    size,
		SortBy:  q.Get("sortBy"),
		SortDir: dir,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
