package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"cardhub/internal/domain"

	"github.com/shopspring/decimal"
)

// CreateTransactionRequest is the body the card API expects for any new
// transaction.
type CreateTransactionRequest struct {
	CardID      int64                  `json:"cardId" validate:"required,gt=0"`
	Type        domain.TransactionType `json:"type" validate:"required,oneof=PURCHASE PAYMENT"`
	Amount      decimal.Decimal        `json:"amount" validate:"required,gt=0"`
	Description string                 `json:"description" validate:"max=255"`
}

// TransactionFilter narrows SearchTransactions. Zero fields are omitted.
type TransactionFilter struct {
	CardID     int64
	CustomerID int64
	Type       domain.TransactionType
	Status     domain.TransactionStatus
	Keyword    string
	From, To   string
}

func (f TransactionFilter) apply(q url.Values) {
	if f.CardID > 0 {
		q.Set("cardId", fmt.Sprint(f.CardID))
	}
	if f.CustomerID > 0 {
		q.Set("customerId", fmt.Sprint(f.CustomerID))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Keyword != "" {
		q.Set("keyword", f.Keyword)
	}
	if f.From != "" {
		q.Set("startDate", f.From)
	}
	if f.To != "" {
		q.Set("endDate", f.To)
	}
}

// ListTransactions pages through every transaction, newest first unless
// req overrides the sort.
func (c *Client) ListTransactions(ctx context.Context, req PageRequest) (domain.Page[domain.Transaction], error) {
	if req.SortBy == "" {
		req.SortBy, req.SortDir = "transactionDate", "DESC"
	}
	return getPage[domain.Transaction](ctx, c, "/api/transactions", req.values())
}

func (c *Client) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/transactions/%d", id), nil, nil, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *Client) TransactionsByCard(ctx context.Context, cardID int64, req PageRequest) (domain.Page[domain.Transaction], error) {
	return getPage[domain.Transaction](ctx, c, fmt.Sprintf("/api/transactions/card/%d", cardID), req.values())
}

func (c *Client) TransactionsByCustomer(ctx context.Context, customerID int64, req PageRequest) (domain.Page[domain.Transaction], error) {
	return getPage[domain.Transaction](ctx, c, fmt.Sprintf("/api/transactions/customer/%d", customerID), req.values())
}

func (c *Client) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions", nil, req, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Purchase charges amount to the card.
func (c *Client) Purchase(ctx context.Context, cardID int64, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if description == "" {
		description = "Purchase"
	}
	return c.CreateTransaction(ctx, &CreateTransactionRequest{
		CardID:      cardID,
		Type:        domain.TransactionPurchase,
		Amount:      amount,
		Description: description,
	})
}

// MakePayment pays amount towards the card's outstanding balance.
func (c *Client) MakePayment(ctx context.Context, cardID int64, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if description == "" {
		description = "Credit Card Payment"
	}
	return c.CreateTransaction(ctx, &CreateTransactionRequest{
		CardID:      cardID,
		Type:        domain.TransactionPayment,
		Amount:      amount,
		Description: description,
	})
}

// DailySpending is what the card has spent today according to the API.
func (c *Client) DailySpending(ctx context.Context, cardID int64) (decimal.Decimal, error) {
	return c.getAmount(ctx, fmt.Sprintf("/api/transactions/card/%d/daily-spending", cardID))
}

// TotalSpending is the card's all-time spending according to the API.
func (c *Client) TotalSpending(ctx context.Context, cardID int64) (decimal.Decimal, error) {
	return c.getAmount(ctx, fmt.Sprintf("/api/transactions/card/%d/total-spending", cardID))
}

func (c *Client) ReverseTransaction(ctx context.Context, id int64, reason string) (*domain.Transaction, error) {
	q := url.Values{}
	q.Set("reason", reason)
	var txn domain.Transaction
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/transactions/%d/reverse", id), q, nil, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *Client) TransactionsByStatus(ctx context.Context, status domain.TransactionStatus, req PageRequest) (domain.Page[domain.Transaction], error) {
	return getPage[domain.Transaction](ctx, c, "/api/transactions/status/"+url.PathEscape(string(status)), req.values())
}

func (c *Client) TransactionsByType(ctx context.Context, txnType domain.TransactionType, req PageRequest) (domain.Page[domain.Transaction], error) {
	return getPage[domain.Transaction](ctx, c, "/api/transactions/type/"+url.PathEscape(string(txnType)), req.values())
}

func (c *Client) SearchTransactions(ctx context.Context, filter TransactionFilter, req PageRequest) (domain.Page[domain.Transaction], error) {
	q := req.values()
	filter.apply(q)
	return getPage[domain.Transaction](ctx, c, "/api/transactions/search", q)
}

// getAmount reads an endpoint that answers with a bare number or an object
// carrying "amount" / "total".
func (c *Client) getAmount(ctx context.Context, path string) (decimal.Decimal, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return decimal.Zero, err
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		for _, key := range []string{"amount", "total", "dailySpending", "totalSpending"} {
			if v, ok := wrapped[key]; ok {
				return domain.ParseAmount(v), nil
			}
		}
		return decimal.Zero, nil
	}
	return domain.ParseAmount(raw), nil
}
