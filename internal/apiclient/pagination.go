package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"cardhub/internal/domain"
	apperrors "cardhub/pkg/errors"
)

// maxListPages bounds the walk over an unpaged listing that answered paged.
const maxListPages = 100

// PageRequest selects one page of a listing. Page is zero-based.
type PageRequest struct {
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

func (p PageRequest) values() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	if p.Size > 0 {
		q.Set("size", strconv.Itoa(p.Size))
	}
	if p.SortBy != "" {
		q.Set("sortBy", p.SortBy)
	}
	if p.SortDir != "" {
		q.Set("sortDir", p.SortDir)
	}
	return q
}

// decodePage accepts a Spring page object, a bare array or null.
func decodePage[T any](raw json.RawMessage) (domain.Page[T], error) {
	var page domain.Page[T]

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		page.Content = []T{}
		return page, nil
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page.Content); err != nil {
			return page, err
		}
		page.Size = len(page.Content)
		page.TotalPages = 1
		page.TotalElements = int64(len(page.Content))
		return page, nil
	}

	if err := json.Unmarshal(trimmed, &page); err != nil {
		return page, err
	}
	if page.Content == nil {
		page.Content = []T{}
	}
	if page.TotalElements == 0 && len(page.Content) > 0 {
		page.TotalElements = int64(len(page.Content))
	}
	return page, nil
}

func getPage[T any](ctx context.Context, c *Client, path string, query url.Values) (domain.Page[T], error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", path, query, nil, &raw); err != nil {
		return domain.Page[T]{}, err
	}
	page, err := decodePage[T](raw)
	if err != nil {
		return domain.Page[T]{}, fmt.Errorf("%w: GET %s: %v", apperrors.ErrInvalidResponse, path, err)
	}
	return page, nil
}

// getList reads an unpaged listing. When the API answers with a Spring page
// that has more pages, the listing is walked again in stable order.
func getList[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	first, err := getPage[T](ctx, c, path, query)
	if err != nil {
		return nil, err
	}
	if first.TotalPages <= 1 {
		return first.Content, nil
	}

	size := first.Size
	if size <= 0 {
		size = len(first.Content)
	}
	all, err := FetchAll(ctx, size, maxListPages, func(ctx context.Context, req PageRequest) (domain.Page[T], error) {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		for k, v := range req.values() {
			q[k] = v
		}
		return getPage[T](ctx, c, path, q)
	})
	if err != nil {
		return nil, err
	}
	if all.Truncated {
		c.logger.Warn("Listing truncated", map[string]interface{}{
			"path":    path,
			"fetched": len(all.Items),
			"total":   all.TotalElements,
		})
	}
	return all.Items, nil
}

// PageFetcher loads one page of a listing.
type PageFetcher[T any] func(ctx context.Context, req PageRequest) (domain.Page[T], error)

// Collected is the outcome of FetchAll.
type Collected[T any] struct {
	Items []T
	// Truncated is set when maxPages was reached before the last page.
	Truncated bool
	// TotalElements is what the API reported, which may exceed len(Items)
	// when Truncated.
	TotalElements int64
}

// keyed is implemented by records that carry a stable id.
type keyed interface {
	Key() int64
}

// FetchAll walks a listing page by page until the API reports the last page
// or maxPages pages were read. Any page error aborts the walk so callers
// never aggregate over a silently partial set.
//
// Pages are requested in ascending id order so records created during the
// walk land on the last page instead of shifting earlier ones. Records that
// still show up twice (same non-zero Key) are kept once.
func FetchAll[T any](ctx context.Context, pageSize, maxPages int, fetch PageFetcher[T]) (Collected[T], error) {
	var out Collected[T]
	out.Items = []T{}
	seen := make(map[int64]struct{})

	for n := 0; n < maxPages; n++ {
		page, err := fetch(ctx, PageRequest{Page: n, Size: pageSize, SortBy: "id", SortDir: "ASC"})
		if err != nil {
			return Collected[T]{}, fmt.Errorf("fetch page %d: %w", n, err)
		}
		for _, item := range page.Content {
			if k, ok := any(item).(keyed); ok && k.Key() != 0 {
				if _, dup := seen[k.Key()]; dup {
					continue
				}
				seen[k.Key()] = struct{}{}
			}
			out.Items = append(out.Items, item)
		}
		out.TotalElements = page.TotalElements

		if page.Last() || len(page.Content) == 0 {
			if out.TotalElements < int64(len(out.Items)) {
				out.TotalElements = int64(len(out.Items))
			}
			return out, nil
		}
	}

	out.Truncated = true
	return out, nil
}
