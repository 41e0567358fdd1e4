// Package checkout validates purchases and card payments before they are
// forwarded to the card API.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	"cardhub/internal/session"
	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"

	"github.com/shopspring/decimal"
)

// Item is one cart line.
type Item struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Price    decimal.Decimal `json:"price" validate:"required,gt=0"`
	Quantity int             `json:"quantity" validate:"required,gt=0,lte=99"`
}

// Cart is a checkout request for a single card.
type Cart struct {
	CardID int64  `json:"cardId" validate:"required,gt=0"`
	Items  []Item `json:"items" validate:"required,min=1,dive"`
}

// Total is the cart value rounded to cents.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// Description lists the cart as "2x Headphones, 1x Cable".
func (c Cart) Description() string {
	parts := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, strings.TrimSpace(it.Name)))
	}
	return "Purchase from CardHub Store: " + strings.Join(parts, ", ")
}

// PaymentRequest pays down a card's outstanding balance.
type PaymentRequest struct {
	CardID      int64           `json:"cardId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=255"`
}

// Receipt is returned after a successful purchase or payment.
type Receipt struct {
	Transaction *domain.Transaction `json:"transaction"`
	Amount      decimal.Decimal     `json:"amount"`
	Description string              `json:"description"`
}

// Cards resolves cards of the session customer and drops cached views.
type Cards interface {
	OwnedCard(ctx context.Context, sess *session.Session, cardID int64) (*domain.Card, error)
	Invalidate(ctx context.Context, userID int64)
}

type Service struct {
	client *apiclient.Client
	cards  Cards
	logger logger.Logger
}

func NewService(client *apiclient.Client, cards Cards, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{client: client, cards: cards, logger: log}
}

// Purchase charges the cart total to one of the customer's active cards if
// its available credit covers it.
func (s *Service) Purchase(ctx context.Context, sess *session.Session, cart Cart) (*Receipt, error) {
	if len(cart.Items) == 0 {
		return nil, apperrors.ErrEmptyCart
	}
	for _, it := range cart.Items {
		if it.Quantity <= 0 || !it.Price.IsPositive() {
			return nil, apperrors.ErrInvalidAmount
		}
	}
	total := cart.Total()

	card, err := s.cards.OwnedCard(ctx, sess, cart.CardID)
	if err != nil {
		return nil, err
	}
	if card.Status != domain.CardActive {
		return nil, apperrors.ErrCardNotActive
	}
	if card.AvailableCredit.LessThan(total) {
		return nil, fmt.Errorf("%w: available %s, required %s",
			apperrors.ErrInsufficientCredit, card.AvailableCredit.StringFixed(2), total.StringFixed(2))
	}

	description := cart.Description()
	txn, err := s.client.WithToken(sess.Token).Purchase(ctx, card.ID, total, description)
	if err != nil {
		return nil, err
	}
	s.cards.Invalidate(ctx, sess.User.ID)

	s.logger.Info("Purchase completed", map[string]interface{}{
		"user_id": sess.User.ID,
		"card_id": card.ID,
		"amount":  total.String(),
		"items":   len(cart.Items),
	})
	return &Receipt{Transaction: txn, Amount: total, Description: description}, nil
}

// Pay records a payment of at most the card's outstanding balance.
func (s *Service) Pay(ctx context.Context, sess *session.Session, req PaymentRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	card, err := s.cards.OwnedCard(ctx, sess, req.CardID)
	if err != nil {
		return nil, err
	}
	outstanding := card.Outstanding()
	if req.Amount.GreaterThan(outstanding) {
		return nil, fmt.Errorf("%w: outstanding %s", apperrors.ErrPaymentExceedsBalance, outstanding.StringFixed(2))
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Credit Card Payment"
	}
	txn, err := s.client.WithToken(sess.Token).MakePayment(ctx, card.ID, req.Amount, description)
	if err != nil {
		return nil, err
	}
	s.cards.Invalidate(ctx, sess.User.ID)

	s.logger.Info("Payment completed", map[string]interface{}{
		"user_id": sess.User.ID,
		"card_id": card.ID,
		"amount":  req.Amount.String(),
	})
	return &Receipt{Transaction: txn, Amount: req.Amount, Description: description}, nil
}
