package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cardhub/internal/domain"
	apperrors "cardhub/pkg/errors"
)

func (c *Client) ListCustomers(ctx context.Context, req PageRequest) (domain.Page[domain.Customer], error) {
	if req.SortBy == "" {
		req.SortBy, req.SortDir = "id", "ASC"
	}
	return getPage[domain.Customer](ctx, c, "/api/customers", req.values())
}

func (c *Client) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var customer domain.Customer
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/customers/%d", id), nil, nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByUser returns the customer profile linked to a user, or nil
// when the user has not completed one yet.
func (c *Client) GetCustomerByUser(ctx context.Context, userID int64) (*domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/customers/user/%d", userID), nil, nil, &customer)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	var created domain.Customer
	if err := c.do(ctx, http.MethodPost, "/api/customers", nil, customer, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id int64, customer *domain.Customer) (*domain.Customer, error) {
	var updated domain.Customer
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/customers/%d", id), nil, customer, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SaveCustomer updates customer id when it exists and creates it otherwise.
func (c *Client) SaveCustomer(ctx context.Context, id int64, customer *domain.Customer) (*domain.Customer, bool, error) {
	if id > 0 {
		_, err := c.GetCustomer(ctx, id)
		switch {
		case err == nil:
			updated, err := c.UpdateCustomer(ctx, id, customer)
			return updated, false, err
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, false, err
		}
	}
	created, err := c.CreateCustomer(ctx, customer)
	return created, true, err
}

func (c *Client) DeleteCustomer(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/customers/%d", id), nil, nil, nil)
}

func (c *Client) SearchCustomers(ctx context.Context, keyword string, req PageRequest) (domain.Page[domain.Customer], error) {
	q := req.values()
	q.Set("keyword", keyword)
	return getPage[domain.Customer](ctx, c, "/api/customers/search", q)
}

func (c *Client) CustomersByStatus(ctx context.Context, status domain.CustomerStatus) ([]domain.Customer, error) {
	return getList[domain.Customer](ctx, c, "/api/customers/status/"+url.PathEscape(string(status)), nil)
}

func (c *Client) UpdateCustomerStatus(ctx context.Context, id int64, status domain.CustomerStatus) (*domain.Customer, error) {
	q := url.Values{}
	q.Set("status", string(status))
	var updated domain.Customer
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/customers/%d/status", id), q, nil, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
