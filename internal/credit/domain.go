// Package credit maintains customer credit balances with the same
// balance-plus-immutable-log shape as the stock ledger.
package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported credit transactions.
type TransactionType string

const (
	TypeCredit     TransactionType = "credit"
	TypePayment    TransactionType = "payment"
	TypeRefund     TransactionType = "refund"
	TypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether the type is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeCredit, TypePayment, TypeRefund, TypeAdjustment:
		return true
	}
	return false
}

// Transaction is one immutable change against a customer's credit
// balance. Created once, never mutated.
type Transaction struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ActorID       int64           `json:"user_id"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Balance is the denormalized running balance, the position analog.
type Balance struct {
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"credit_balance"`
	Version    int64           `json:"-"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PostInput carries one transaction request. Amount is a positive
// magnitude for credit/payment/refund; adjustment takes a signed
// amount and may move the balance either way.
type PostInput struct {
	CustomerID int64
	Type       TransactionType
	Amount     decimal.Decimal
	ActorID    int64
	Notes      string
}
