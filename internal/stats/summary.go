// Package stats derives dashboard statistics from card API records.
//
// Every function here is a pure transform: inputs are only read, results are
// freshly allocated values, and no state is shared between calls, so they
// are safe to run concurrently on immutable snapshots. Currency sums use
// decimal arithmetic and are never rounded before display.
package stats

import (
	"cardhub/internal/domain"

	"github.com/shopspring/decimal"
)

// Summary is the spend overview shown on customer dashboards.
type Summary struct {
	TotalSpent        decimal.Decimal `json:"totalSpent"`
	TotalPaid         decimal.Decimal `json:"totalPaid"`
	PendingAmount     decimal.Decimal `json:"pendingAmount"`
	TotalTransactions int             `json:"totalTransactions"`
}

// Aggregate folds transactions into a Summary.
//
// TotalSpent and TotalPaid only count successful purchases and payments;
// PendingAmount is TotalSpent minus TotalPaid, floored at zero.
// TotalTransactions counts every record whatever its type or status.
func Aggregate(txns []domain.Transaction) Summary {
	spent := decimal.Zero
	paid := decimal.Zero

	for _, t := range txns {
		if !t.Status.IsSuccessful() {
			continue
		}
		switch t.Type {
		case domain.TransactionPurchase:
			spent = spent.Add(amountOf(t))
		case domain.TransactionPayment:
			paid = paid.Add(amountOf(t))
		}
	}

	return Summary{
		TotalSpent:        spent,
		TotalPaid:         paid,
		PendingAmount:     floorZero(spent.Sub(paid)),
		TotalTransactions: len(txns),
	}
}

// amountOf guards against records built in code rather than decoded, where
// a negative amount would break the sign convention.
func amountOf(t domain.Transaction) decimal.Decimal {
	if t.Amount.IsNegative() {
		return decimal.Zero
	}
	return t.Amount
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Totals is the platform-wide ledger shown on the admin transaction screen:
// the Summary plus refund volume and per-type counts of successful records.
type Totals struct {
	Summary
	TotalRefunds  decimal.Decimal `json:"totalRefunds"`
	PurchaseCount int             `json:"purchaseCount"`
	PaymentCount  int             `json:"paymentCount"`
	RefundCount   int             `json:"refundCount"`
}

// LedgerTotals extends Aggregate with successful refunds and the number of
// successful purchases, payments and refunds.
func LedgerTotals(txns []domain.Transaction) Totals {
	out := Totals{Summary: Aggregate(txns), TotalRefunds: decimal.Zero}
	for _, t := range txns {
		if !t.Status.IsSuccessful() {
			continue
		}
		switch t.Type {
		case domain.TransactionPurchase:
			out.PurchaseCount++
		case domain.TransactionPayment:
			out.PaymentCount++
		case domain.TransactionRefund:
			out.RefundCount++
			out.TotalRefunds = out.TotalRefunds.Add(amountOf(t))
		}
	}
	return out
}
