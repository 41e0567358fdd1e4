package dashboard

import (
	"context"
	"fmt"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	"cardhub/internal/session"
	"cardhub/internal/stats"
	apperrors "cardhub/pkg/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const adminRecentSize = 5

// AdminDashboard is the overview screen for administrators. Counts come
// from the API's totalElements, never from the length of a display page.
type AdminDashboard struct {
	TotalCustomers     int64                `json:"totalCustomers"`
	TotalCards         int64                `json:"totalCards"`
	ActiveCards        int                  `json:"activeCards"`
	TotalTransactions  int64                `json:"totalTransactions"`
	TotalRevenue       decimal.Decimal      `json:"totalRevenue"`
	RecentCustomers    []domain.Customer    `json:"recentCustomers"`
	RecentCards        []domain.Card        `json:"recentCards"`
	RecentTransactions []domain.Transaction `json:"recentTransactions"`
	Partial            bool                 `json:"partial"`
	GeneratedAt        time.Time            `json:"generatedAt"`
}

// Report is the admin reports screen.
type Report struct {
	Customers    stats.CustomerReport    `json:"customers"`
	Cards        stats.CardReport        `json:"cards"`
	Transactions stats.TransactionReport `json:"transactions"`
	Revenue      stats.RevenueReport     `json:"revenue"`
	Partial      bool                    `json:"partial"`
	GeneratedAt  time.Time               `json:"generatedAt"`
}

func requireAdmin(sess *session.Session) error {
	if !sess.IsAdmin() {
		return apperrors.ErrForbidden
	}
	return nil
}

func (s *Service) AdminDashboard(ctx context.Context, sess *session.Session) (*AdminDashboard, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}

	return cached(ctx, s, sess, "admin", func() (*AdminDashboard, error) {
		api := s.api(sess)
		view := &AdminDashboard{TotalRevenue: decimal.Zero}
		recent := apiclient.PageRequest{Size: adminRecentSize, SortBy: "id", SortDir: "DESC"}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			page, err := api.ListCustomers(gctx, recent)
			if err != nil {
				return fmt.Errorf("load customers: %w", err)
			}
			view.TotalCustomers = page.TotalElements
			view.RecentCustomers = page.Content
			return nil
		})
		g.Go(func() error {
			page, err := api.ListCards(gctx, recent)
			if err != nil {
				return fmt.Errorf("load cards: %w", err)
			}
			view.TotalCards = page.TotalElements
			view.RecentCards = page.Content
			return nil
		})
		g.Go(func() error {
			active, err := api.CardsByStatus(gctx, domain.CardActive)
			if err != nil {
				return fmt.Errorf("load active cards: %w", err)
			}
			view.ActiveCards = len(active)
			return nil
		})
		g.Go(func() error {
			page, err := api.ListTransactions(gctx, apiclient.PageRequest{Size: adminRecentSize})
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			view.TotalTransactions = page.TotalElements
			view.RecentTransactions = stats.Recent(page.Content, adminRecentSize)
			return nil
		})
		g.Go(func() error {
			all, err := s.fetchAllTransactions(gctx, api.ListTransactions)
			if err != nil {
				return fmt.Errorf("load revenue: %w", err)
			}
			view.TotalRevenue = stats.Revenue(all.Items, s.now()).TotalRevenue
			view.Partial = all.Truncated
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		view.GeneratedAt = s.now()
		return view, nil
	})
}

// Report computes the admin reports over the full customer, card and
// transaction sets.
func (s *Service) Report(ctx context.Context, sess *session.Session) (*Report, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}

	return cached(ctx, s, sess, "report", func() (*Report, error) {
		api := s.api(sess)
		var (
			customers    apiclient.Collected[domain.Customer]
			cards        apiclient.Collected[domain.Card]
			transactions apiclient.Collected[domain.Transaction]
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			customers, err = apiclient.FetchAll(gctx, s.policy.PageSize, s.policy.MaxPages, api.ListCustomers)
			if err != nil {
				return fmt.Errorf("load customers: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			cards, err = apiclient.FetchAll(gctx, s.policy.PageSize, s.policy.MaxPages, api.ListCards)
			if err != nil {
				return fmt.Errorf("load cards: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			transactions, err = s.fetchAllTransactions(gctx, api.ListTransactions)
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		now := s.now()
		return &Report{
			Customers:    stats.SummarizeCustomers(customers.Items),
			Cards:        stats.SummarizeCards(cards.Items),
			Transactions: stats.SummarizeTransactions(transactions.Items),
			Revenue:      stats.Revenue(transactions.Items, now),
			Partial:      customers.Truncated || cards.Truncated || transactions.Truncated,
			GeneratedAt:  now,
		}, nil
	})
}

// AdminTransactionsView backs the admin transaction screen. Totals and
// ByType cover every transaction matching the filter; Transactions is only
// the requested page.
type AdminTransactionsView struct {
	Totals        stats.Totals                   `json:"summary"`
	ByType        map[domain.TransactionType]int `json:"byType"`
	Transactions  []domain.Transaction           `json:"transactions"`
	Page          int                            `json:"page"`
	TotalPages    int                            `json:"totalPages"`
	TotalElements int64                          `json:"totalElements"`
	Partial       bool                           `json:"partial"`
}

// adminTransactionSource picks the narrowest listing endpoint for filter.
func adminTransactionSource(api *apiclient.Client, filter apiclient.TransactionFilter) apiclient.PageFetcher[domain.Transaction] {
	only := func(f apiclient.TransactionFilter) bool { return filter == f }
	switch {
	case filter == (apiclient.TransactionFilter{}):
		return api.ListTransactions
	case only(apiclient.TransactionFilter{Status: filter.Status}):
		return func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
			return api.TransactionsByStatus(ctx, filter.Status, req)
		}
	case only(apiclient.TransactionFilter{Type: filter.Type}):
		return func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
			return api.TransactionsByType(ctx, filter.Type, req)
		}
	default:
		return func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
			return api.SearchTransactions(ctx, filter, req)
		}
	}
}

// AdminTransactions returns one display page of the platform's transactions
// with the ledger totals of the same filter computed over every page.
func (s *Service) AdminTransactions(ctx context.Context, sess *session.Session, filter apiclient.TransactionFilter, page apiclient.PageRequest) (*AdminTransactionsView, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	if page.Page < 0 {
		page.Page = 0
	}
	if page.Size <= 0 {
		page.Size = s.policy.DisplayPageSize
	}

	key := fmt.Sprintf("admin-transactions:%+v:%+v", filter, page)
	return cached(ctx, s, sess, key, func() (*AdminTransactionsView, error) {
		fetch := adminTransactionSource(s.api(sess), filter)
		view := &AdminTransactionsView{Page: page.Page}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			all, err := s.fetchAllTransactions(gctx, fetch)
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			view.Totals = stats.LedgerTotals(all.Items)
			view.ByType = stats.SummarizeTransactions(all.Items).ByType
			view.Partial = all.Truncated
			return nil
		})
		g.Go(func() error {
			p, err := fetch(gctx, page)
			if err != nil {
				return fmt.Errorf("load transaction page: %w", err)
			}
			view.Transactions = p.Content
			view.TotalPages = p.TotalPages
			view.TotalElements = p.TotalElements
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return view, nil
	})
}
