package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"cardhub/internal/domain"

	"github.com/shopspring/decimal"
)

// IssueCardRequest is a card application.
type IssueCardRequest struct {
	CustomerID     int64           `json:"customerId" validate:"required,gt=0"`
	CardType       domain.CardType `json:"cardType" validate:"required,oneof=SILVER GOLD PLATINUM DIAMOND"`
	CardHolderName string          `json:"cardHolderName" validate:"required,max=100"`
}

func (c *Client) ListCards(ctx context.Context, req PageRequest) (domain.Page[domain.Card], error) {
	return getPage[domain.Card](ctx, c, "/api/cards", req.values())
}

func (c *Client) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/cards/%d", id), nil, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *Client) CardsByCustomer(ctx context.Context, customerID int64) ([]domain.Card, error) {
	return getList[domain.Card](ctx, c, fmt.Sprintf("/api/cards/customer/%d", customerID), nil)
}

func (c *Client) IssueCard(ctx context.Context, req *IssueCardRequest) (*domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodPost, "/api/cards", nil, req, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *Client) ActivateCard(ctx context.Context, id int64) (*domain.Card, error) {
	return c.patchCard(ctx, fmt.Sprintf("/api/cards/%d/activate", id), nil)
}

func (c *Client) BlockCard(ctx context.Context, id int64, reason string) (*domain.Card, error) {
	q := url.Values{}
	q.Set("reason", reason)
	return c.patchCard(ctx, fmt.Sprintf("/api/cards/%d/block", id), q)
}

func (c *Client) UnblockCard(ctx context.Context, id int64) (*domain.Card, error) {
	return c.patchCard(ctx, fmt.Sprintf("/api/cards/%d/unblock", id), nil)
}

func (c *Client) UpdateCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (*domain.Card, error) {
	q := url.Values{}
	q.Set("limit", limit.String())
	return c.patchCard(ctx, fmt.Sprintf("/api/cards/%d/credit-limit", id), q)
}

func (c *Client) UpdateDailyLimit(ctx context.Context, id int64, limit decimal.Decimal) (*domain.Card, error) {
	q := url.Values{}
	q.Set("limit", limit.String())
	return c.patchCard(ctx, fmt.Sprintf("/api/cards/%d/daily-limit", id), q)
}

func (c *Client) CardsByStatus(ctx context.Context, status domain.CardStatus) ([]domain.Card, error) {
	return getList[domain.Card](ctx, c, "/api/cards/status/"+url.PathEscape(string(status)), nil)
}

func (c *Client) CardsByType(ctx context.Context, cardType domain.CardType) ([]domain.Card, error) {
	return getList[domain.Card](ctx, c, "/api/cards/type/"+url.PathEscape(string(cardType)), nil)
}

func (c *Client) patchCard(ctx context.Context, path string, q url.Values) (*domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodPatch, path, q, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
