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

// CustomerDashboard is the landing screen of a customer.
type CustomerDashboard struct {
	Customer           *domain.Customer     `json:"customer"`
	Cards              []domain.Card        `json:"cards"`
	ActiveCards        int                  `json:"activeCards"`
	TotalCreditLimit   decimal.Decimal      `json:"totalCreditLimit"`
	AvailableCredit    decimal.Decimal      `json:"availableCredit"`
	Summary            stats.Summary        `json:"summary"`
	RecentTransactions []domain.Transaction `json:"recentTransactions"`
	Partial            bool                 `json:"partial"`
	GeneratedAt        time.Time            `json:"generatedAt"`
}

// SummaryView is an all-time Summary with its completeness flag.
type SummaryView struct {
	Summary     stats.Summary `json:"summary"`
	Partial     bool          `json:"partial"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// TransactionsView backs the transaction history screen. Summary covers
// every transaction in scope; Transactions is only the requested page.
type TransactionsView struct {
	CardID        int64                `json:"cardId,omitempty"`
	Summary       stats.Summary        `json:"summary"`
	Transactions  []domain.Transaction `json:"transactions"`
	Page          int                  `json:"page"`
	TotalPages    int                  `json:"totalPages"`
	TotalElements int64                `json:"totalElements"`
	Partial       bool                 `json:"partial"`
}

func customerOf(sess *session.Session) (int64, error) {
	id, ok := sess.CustomerID()
	if !ok {
		return 0, apperrors.ErrCustomerProfileMissing
	}
	return id, nil
}

func (s *Service) CustomerDashboard(ctx context.Context, sess *session.Session) (*CustomerDashboard, error) {
	customerID, err := customerOf(sess)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s, sess, "customer", func() (*CustomerDashboard, error) {
		api := s.api(sess)
		view := &CustomerDashboard{
			Customer:         sess.Customer,
			TotalCreditLimit: decimal.Zero,
			AvailableCredit:  decimal.Zero,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cards, err := api.CardsByCustomer(gctx, customerID)
			if err != nil {
				return fmt.Errorf("load cards: %w", err)
			}
			view.Cards = cards
			return nil
		})
		g.Go(func() error {
			all, err := s.fetchAllTransactions(gctx, func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
				return api.TransactionsByCustomer(ctx, customerID, req)
			})
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			view.Summary = stats.Aggregate(all.Items)
			view.Partial = all.Truncated
			return nil
		})
		g.Go(func() error {
			page, err := api.TransactionsByCustomer(gctx, customerID, apiclient.PageRequest{Size: s.policy.DisplayPageSize})
			if err != nil {
				return fmt.Errorf("load recent transactions: %w", err)
			}
			view.RecentTransactions = stats.Recent(page.Content, s.policy.DisplayPageSize)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		cardTotals := stats.SummarizeCards(view.Cards)
		view.ActiveCards = cardTotals.Active
		view.TotalCreditLimit = cardTotals.TotalCreditLimit
		view.AvailableCredit = cardTotals.TotalAvailableCredit
		view.GeneratedAt = s.now()
		return view, nil
	})
}

// Summary is the all-time Summary of the session's customer.
func (s *Service) Summary(ctx context.Context, sess *session.Session) (*SummaryView, error) {
	customerID, err := customerOf(sess)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s, sess, "summary", func() (*SummaryView, error) {
		api := s.api(sess)
		all, err := s.fetchAllTransactions(ctx, func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
			return api.TransactionsByCustomer(ctx, customerID, req)
		})
		if err != nil {
			return nil, err
		}
		return &SummaryView{
			Summary:     stats.Aggregate(all.Items),
			Partial:     all.Truncated,
			GeneratedAt: s.now(),
		}, nil
	})
}

// TransactionsView returns one display page of the customer's history,
// optionally restricted to one of their cards, with the Summary of the same
// scope computed over every page.
func (s *Service) TransactionsView(ctx context.Context, sess *session.Session, cardID int64, page int) (*TransactionsView, error) {
	customerID, err := customerOf(sess)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}

	api := s.api(sess)
	if cardID > 0 {
		if err := s.ensureOwned(ctx, api, customerID, cardID); err != nil {
			return nil, err
		}
	}

	return cached(ctx, s, sess, fmt.Sprintf("transactions:%d:%d", cardID, page), func() (*TransactionsView, error) {
		fetch := func(ctx context.Context, req apiclient.PageRequest) (domain.Page[domain.Transaction], error) {
			if cardID > 0 {
				return api.TransactionsByCard(ctx, cardID, req)
			}
			return api.TransactionsByCustomer(ctx, customerID, req)
		}

		view := &TransactionsView{CardID: cardID, Page: page}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			all, err := s.fetchAllTransactions(gctx, fetch)
			if err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			view.Summary = stats.Aggregate(all.Items)
			view.Partial = all.Truncated
			return nil
		})
		g.Go(func() error {
			p, err := fetch(gctx, apiclient.PageRequest{Page: page, Size: s.policy.DisplayPageSize})
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

// Cards lists the session customer's cards.
func (s *Service) Cards(ctx context.Context, sess *session.Session) ([]domain.Card, error) {
	customerID, err := customerOf(sess)
	if err != nil {
		return nil, err
	}
	return s.api(sess).CardsByCustomer(ctx, customerID)
}

// OwnedCard loads a card and checks that it belongs to the session customer.
func (s *Service) OwnedCard(ctx context.Context, sess *session.Session, cardID int64) (*domain.Card, error) {
	customerID, err := customerOf(sess)
	if err != nil {
		return nil, err
	}
	card, err := s.api(sess).GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.CustomerID != 0 && card.CustomerID != customerID {
		return nil, apperrors.ErrCardNotOwned
	}
	if card.CustomerID == 0 {
		// Some API versions omit customerId on single-card reads.
		if err := s.ensureOwned(ctx, s.api(sess), customerID, cardID); err != nil {
			return nil, err
		}
	}
	return card, nil
}

func (s *Service) ensureOwned(ctx context.Context, api *apiclient.Client, customerID, cardID int64) error {
	cards, err := api.CardsByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.ID == cardID {
			return nil
		}
	}
	return apperrors.ErrCardNotOwned
}
