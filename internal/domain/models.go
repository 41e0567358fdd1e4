package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the direction of money movement on a card.
type TransactionType string

const (
	TransactionPurchase TransactionType = "PURCHASE"
	TransactionPayment  TransactionType = "PAYMENT"
	TransactionRefund   TransactionType = "REFUND"
	TransactionCashback TransactionType = "CASHBACK"
	TransactionReversal TransactionType = "REVERSAL"
)

// TransactionTypes lists every type the card API is known to emit.
var TransactionTypes = []TransactionType{
	TransactionPurchase,
	TransactionPayment,
	TransactionRefund,
	TransactionCashback,
	TransactionReversal,
}

// Known reports whether t is one of TransactionTypes.
func (t TransactionType) Known() bool {
	for _, k := range TransactionTypes {
		if t == k {
			return true
		}
	}
	return false
}

// TransactionStatus is the processing state reported by the card API.
type TransactionStatus string

const (
	StatusSuccess  TransactionStatus = "SUCCESS"
	StatusApproved TransactionStatus = "APPROVED"
	StatusPending  TransactionStatus = "PENDING"
	StatusDeclined TransactionStatus = "DECLINED"
	StatusFailed   TransactionStatus = "FAILED"
	StatusReversed TransactionStatus = "REVERSED"
)

// IsSuccessful reports whether the transaction is finalized and counts
// toward totals. SUCCESS and APPROVED are equivalent everywhere.
func (s TransactionStatus) IsSuccessful() bool {
	return s == StatusSuccess || s == StatusApproved
}

// IsDeclined reports whether the transaction was rejected.
func (s TransactionStatus) IsDeclined() bool {
	return s == StatusDeclined || s == StatusFailed
}

// Transaction is one money movement on a credit card. Amount is never
// negative; direction comes from Type.
type Transaction struct {
	ID              int64             `json:"id"`
	CardID          int64             `json:"cardId,omitempty"`
	CustomerID      int64             `json:"customerId,omitempty"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Amount          decimal.Decimal   `json:"amount"`
	Description     string            `json:"description,omitempty"`
	MerchantName    string            `json:"merchantName,omitempty"`
	TransactionDate time.Time         `json:"transactionDate"`
}

// UnmarshalJSON accepts both the "type" and legacy "transactionType" keys and
// decodes amount and date leniently.
// Key identifies the record across listing pages.
func (t Transaction) Key() int64 { return t.ID }

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type alias Transaction
	aux := struct {
		*alias
		Type            string          `json:"type"`
		TransactionType string          `json:"transactionType"`
		Status          string          `json:"status"`
		Amount          json.RawMessage `json:"amount"`
		TransactionDate json.RawMessage `json:"transactionDate"`
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	kind := aux.Type
	if strings.TrimSpace(kind) == "" {
		kind = aux.TransactionType
	}
	t.Type = TransactionType(normalizeEnum(kind))
	t.Status = TransactionStatus(normalizeEnum(aux.Status))
	t.Amount = ParseAmount(aux.Amount)
	t.TransactionDate = ParseTimestamp(aux.TransactionDate)
	return nil
}

type CardType string

const (
	CardSilver   CardType = "SILVER"
	CardGold     CardType = "GOLD"
	CardPlatinum CardType = "PLATINUM"
	CardDiamond  CardType = "DIAMOND"
)

var CardTypes = []CardType{CardSilver, CardGold, CardPlatinum, CardDiamond}

type CardStatus string

const (
	CardActive   CardStatus = "ACTIVE"
	CardBlocked  CardStatus = "BLOCKED"
	CardInactive CardStatus = "INACTIVE"
	CardExpired  CardStatus = "EXPIRED"
)

// Card is a credit card as exposed by the card API.
type Card struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customerId,omitempty"`
	CardNumber      string          `json:"cardNumber,omitempty"`
	CardHolderName  string          `json:"cardHolderName,omitempty"`
	CardType        CardType        `json:"cardType"`
	Status          CardStatus      `json:"status"`
	CreditLimit     decimal.Decimal `json:"creditLimit"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
	DailyLimit      decimal.Decimal `json:"dailyLimit"`
	ExpiryDate      string          `json:"expiryDate,omitempty"`
}

func (c *Card) UnmarshalJSON(data []byte) error {
	type alias Card
	aux := struct {
		*alias
		CardType        string          `json:"cardType"`
		Status          string          `json:"status"`
		CreditLimit     json.RawMessage `json:"creditLimit"`
		AvailableCredit json.RawMessage `json:"availableCredit"`
		DailyLimit      json.RawMessage `json:"dailyLimit"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.CardType = CardType(normalizeEnum(aux.CardType))
	c.Status = CardStatus(normalizeEnum(aux.Status))
	c.CreditLimit = ParseAmount(aux.CreditLimit)
	c.AvailableCredit = ParseAmount(aux.AvailableCredit)
	c.DailyLimit = ParseAmount(aux.DailyLimit)
	return nil
}

// Outstanding is the used part of the credit line, floored at zero.
func (c Card) Key() int64 { return c.ID }

func (c Card) Outstanding() decimal.Decimal {
	used := c.CreditLimit.Sub(c.AvailableCredit)
	if used.IsNegative() {
		return decimal.Zero
	}
	return used
}

// MaskedNumber keeps only the last four digits of the card number.
func (c Card) MaskedNumber() string {
	digits := strings.ReplaceAll(strings.ReplaceAll(c.CardNumber, " ", ""), "-", "")
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "ACTIVE"
	CustomerInactive CustomerStatus = "INACTIVE"
	CustomerBlocked  CustomerStatus = "BLOCKED"
)

// Customer is the profile attached to a CUSTOMER user.
type Customer struct {
	ID           int64           `json:"id,omitempty"`
	UserID       int64           `json:"userId,omitempty"`
	FirstName    string          `json:"firstName" validate:"required,max=100"`
	LastName     string          `json:"lastName" validate:"required,max=100"`
	Email        string          `json:"email" validate:"required,email"`
	Phone        string          `json:"phone" validate:"required,phone_digits"`
	DateOfBirth  string          `json:"dateOfBirth,omitempty"`
	Address      string          `json:"address,omitempty" validate:"max=255"`
	City         string          `json:"city,omitempty" validate:"max=100"`
	State        string          `json:"state,omitempty" validate:"max=100"`
	ZipCode      string          `json:"zipCode,omitempty" validate:"max=20"`
	AnnualIncome decimal.Decimal `json:"annualIncome"`
	Status       CustomerStatus  `json:"status,omitempty"`
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	type alias Customer
	aux := struct {
		*alias
		Status       string          `json:"status"`
		AnnualIncome json.RawMessage `json:"annualIncome"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Status = CustomerStatus(normalizeEnum(aux.Status))
	c.AnnualIncome = ParseAmount(aux.AnnualIncome)
	return nil
}

// FullName joins first and last name.
func (c Customer) Key() int64 { return c.ID }

func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// User is the authenticated account returned by login.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Page is one slice of a paginated card API listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
}

// Last reports whether no further pages follow this one.
func (p Page[T]) Last() bool {
	return p.Number+1 >= p.TotalPages
}

func normalizeEnum(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
