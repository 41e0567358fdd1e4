package stats

import (
	"time"

	"cardhub/internal/domain"

	"github.com/shopspring/decimal"
)

// TransactionReport breaks transactions down by outcome and type.
type TransactionReport struct {
	Total       int                            `json:"total"`
	Approved    int                            `json:"approved"`
	Pending     int                            `json:"pending"`
	Declined    int                            `json:"declined"`
	Reversed    int                            `json:"reversed"`
	TotalAmount decimal.Decimal                `json:"totalAmount"`
	ByType      map[domain.TransactionType]int `json:"byType"`
}

// SummarizeTransactions counts transactions per status bucket and type.
// TotalAmount is the value of successful purchases.
func SummarizeTransactions(txns []domain.Transaction) TransactionReport {
	report := TransactionReport{
		Total:       len(txns),
		TotalAmount: decimal.Zero,
		ByType:      make(map[domain.TransactionType]int, len(domain.TransactionTypes)),
	}
	for _, k := range domain.TransactionTypes {
		report.ByType[k] = 0
	}

	for _, t := range txns {
		switch {
		case t.Status.IsSuccessful():
			report.Approved++
			if t.Type == domain.TransactionPurchase {
				report.TotalAmount = report.TotalAmount.Add(amountOf(t))
			}
		case t.Status == domain.StatusPending:
			report.Pending++
		case t.Status.IsDeclined():
			report.Declined++
		case t.Status == domain.StatusReversed:
			report.Reversed++
		}
		if t.Type.Known() {
			report.ByType[t.Type]++
		}
	}
	return report
}

// RevenueReport compares successful purchase volume month over month.
type RevenueReport struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	ThisMonth    decimal.Decimal `json:"thisMonth"`
	LastMonth    decimal.Decimal `json:"lastMonth"`
	Growth       decimal.Decimal `json:"growth"`
}

var hundred = decimal.NewFromInt(100)

// Revenue buckets successful purchases into the calendar month containing
// now and the one before it, in now's location. Growth is a percentage
// rounded to two places; it is 100 when last month had no revenue and this
// month has some, and 0 when both are empty.
func Revenue(txns []domain.Transaction, now time.Time) RevenueReport {
	thisStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastStart := thisStart.AddDate(0, -1, 0)

	report := RevenueReport{
		TotalRevenue: decimal.Zero,
		ThisMonth:    decimal.Zero,
		LastMonth:    decimal.Zero,
		Growth:       decimal.Zero,
	}

	for _, t := range txns {
		if t.Type != domain.TransactionPurchase || !t.Status.IsSuccessful() {
			continue
		}
		amount := amountOf(t)
		report.TotalRevenue = report.TotalRevenue.Add(amount)

		if t.TransactionDate.IsZero() {
			continue
		}
		at := t.TransactionDate.In(now.Location())
		switch {
		case !at.Before(thisStart):
			report.ThisMonth = report.ThisMonth.Add(amount)
		case !at.Before(lastStart):
			report.LastMonth = report.LastMonth.Add(amount)
		}
	}

	switch {
	case report.LastMonth.IsPositive():
		report.Growth = report.ThisMonth.Sub(report.LastMonth).
			Mul(hundred).
			Div(report.LastMonth).
			Round(2)
	case report.ThisMonth.IsPositive():
		report.Growth = hundred
	}
	return report
}

// CardReport counts cards per status and type and totals their credit lines.
type CardReport struct {
	Total                int                     `json:"total"`
	Active               int                     `json:"active"`
	Inactive             int                     `json:"inactive"`
	Blocked              int                     `json:"blocked"`
	Expired              int                     `json:"expired"`
	ByType               map[domain.CardType]int `json:"byType"`
	TotalCreditLimit     decimal.Decimal         `json:"totalCreditLimit"`
	TotalAvailableCredit decimal.Decimal         `json:"totalAvailableCredit"`
}

func SummarizeCards(cards []domain.Card) CardReport {
	report := CardReport{
		Total:                len(cards),
		ByType:               make(map[domain.CardType]int, len(domain.CardTypes)),
		TotalCreditLimit:     decimal.Zero,
		TotalAvailableCredit: decimal.Zero,
	}
	for _, k := range domain.CardTypes {
		report.ByType[k] = 0
	}

	for _, c := range cards {
		switch c.Status {
		case domain.CardActive:
			report.Active++
		case domain.CardInactive:
			report.Inactive++
		case domain.CardBlocked:
			report.Blocked++
		case domain.CardExpired:
			report.Expired++
		}
		if _, ok := report.ByType[c.CardType]; ok {
			report.ByType[c.CardType]++
		}
		report.TotalCreditLimit = report.TotalCreditLimit.Add(floorZero(c.CreditLimit))
		report.TotalAvailableCredit = report.TotalAvailableCredit.Add(floorZero(c.AvailableCredit))
	}
	return report
}

// CustomerReport counts customers per status.
type CustomerReport struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Blocked  int `json:"blocked"`
}

func SummarizeCustomers(customers []domain.Customer) CustomerReport {
	report := CustomerReport{Total: len(customers)}
	for _, c := range customers {
		switch c.Status {
		case domain.CustomerActive:
			report.Active++
		case domain.CustomerInactive:
			report.Inactive++
		case domain.CustomerBlocked:
			report.Blocked++
		}
	}
	return report
}

// Recent returns up to n transactions, newest first, without touching txns.
func Recent(txns []domain.Transaction, n int) []domain.Transaction {
	if n <= 0 {
		return []domain.Transaction{}
	}
	sorted := make([]domain.Transaction, len(txns))
	copy(sorted, txns)
	sortByDateDesc(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
