// Package dashboard assembles the portal's screens from card API data.
//
// Fetch policy: statistics shown as all-time figures are computed over the
// complete record set, walked page by page with PageSize up to MaxPages.
// Lists shown to the user are a single DisplayPageSize page fetched
// separately. A statistic is never derived from a display page. When the
// walk stops at MaxPages the view is marked Partial.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	"cardhub/internal/session"
	"cardhub/pkg/cache"
	"cardhub/pkg/logger"
)

// Cache stores rendered views between requests. Get returns cache.ErrMiss
// when nothing is stored.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type Policy struct {
	PageSize        int
	MaxPages        int
	DisplayPageSize int
	CacheTTL        time.Duration
}

type Service struct {
	client *apiclient.Client
	cache  Cache
	policy Policy
	logger logger.Logger
	now    func() time.Time
}

// NewService builds a Service. cache may be nil to disable caching.
func NewService(client *apiclient.Client, c Cache, policy Policy, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if policy.DisplayPageSize <= 0 {
		policy.DisplayPageSize = 10
	}
	if policy.PageSize <= 0 {
		policy.PageSize = 500
	}
	if policy.MaxPages <= 0 {
		policy.MaxPages = 40
	}
	return &Service{
		client: client,
		cache:  c,
		policy: policy,
		logger: log,
		now:    time.Now,
	}
}

func (s *Service) api(sess *session.Session) *apiclient.Client {
	return s.client.WithToken(sess.Token)
}

// Invalidate drops every cached view of one user.
func (s *Service) Invalidate(ctx context.Context, userID int64) {
	s.dropPrefix(ctx, userPrefix(userID))
}

// InvalidateAll drops every cached view; used after admin mutations that can
// change any customer's figures.
func (s *Service) InvalidateAll(ctx context.Context) {
	s.dropPrefix(ctx, "dash:")
}

func (s *Service) dropPrefix(ctx context.Context, prefix string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("Dashboard cache invalidation failed", map[string]interface{}{
			"prefix": prefix,
			"error":  err.Error(),
		})
	}
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("dash:user:%d:", userID)
}

// cached serves key from the cache or runs build and stores its result.
func cached[T any](ctx context.Context, s *Service, sess *session.Session, view string, build func() (T, error)) (T, error) {
	key := userPrefix(sess.User.ID) + view
	if s.cache != nil {
		var hit T
		err := s.cache.Get(ctx, key, &hit)
		if err == nil {
			return hit, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Dashboard cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	v, err := build()
	if err != nil {
		return v, err
	}

	if s.cache != nil && s.policy.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, v, s.policy.CacheTTL); err != nil {
			s.logger.Warn("Dashboard cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return v, nil
}

func (s *Service) fetchAllTransactions(ctx context.Context, fetch apiclient.PageFetcher[domain.Transaction]) (apiclient.Collected[domain.Transaction], error) {
	out, err := apiclient.FetchAll(ctx, s.policy.PageSize, s.policy.MaxPages, fetch)
	if err != nil {
		return out, err
	}
	if out.Truncated {
		s.logger.Warn("Transaction walk truncated", map[string]interface{}{
			"fetched":        len(out.Items),
			"total_elements": out.TotalElements,
			"max_pages":      s.policy.MaxPages,
		})
	}
	return out, nil
}
