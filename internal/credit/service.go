package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// RepositoryPort abstracts repository usage for the credit ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, customerID int64) (Balance, error)
	ListTransactions(ctx context.Context, customerID int64, page, perPage int) ([]Transaction, int, error)
}

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, customerID int64) (Balance, error)
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	UpdateBalance(ctx context.Context, balance Balance) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Ledger posts credit transactions and keeps the denormalized balance
// in step, one transaction at a time.
type Ledger struct {
	repo  RepositoryPort
	audit AuditPort
	clock func() time.Time
}

// NewLedger builds the credit Ledger. audit may be nil.
func NewLedger(repo RepositoryPort, audit AuditPort) *Ledger {
	return &Ledger{
		repo:  repo,
		audit: audit,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Post applies one transaction and persists it with the updated
// balance atomically. Payments and refunds floor the balance at zero
// rather than going negative; adjustments may move either way but
// floor at zero too.
func (s *Ledger) Post(ctx context.Context, input PostInput) (Transaction, error) {
	if err := validatePost(input); err != nil {
		return Transaction{}, err
	}

	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.CustomerID)
		if err != nil {
			return err
		}

		before := balance.Amount
		after := applyTransaction(before, input.Type, input.Amount)
		now := s.clock()

		txn = Transaction{
			CustomerID:    input.CustomerID,
			Type:          input.Type,
			Amount:        input.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			ActorID:       input.ActorID,
			Notes:         input.Notes,
			CreatedAt:     now,
		}
		id, err := tx.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = id

		balance.Amount = after
		balance.UpdatedAt = now
		return tx.UpdateBalance(ctx, balance)
	})
	if err != nil {
		return Transaction{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("credit:%s", input.Type),
			Entity:   "credit_transaction",
			EntityID: fmt.Sprintf("%d", txn.ID),
			Meta: map[string]any{
				"customer_id":   txn.CustomerID,
				"amount":        txn.Amount.String(),
				"balance_after": txn.BalanceAfter.String(),
			},
		})
	}
	return txn, nil
}

// GetBalance returns the customer's current balance.
func (s *Ledger) GetBalance(ctx context.Context, customerID int64) (Balance, error) {
	if customerID == 0 {
		return Balance{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	return s.repo.GetBalance(ctx, customerID)
}

// ListTransactions returns the customer's transaction history.
func (s *Ledger) ListTransactions(ctx context.Context, customerID int64, page, perPage int) ([]Transaction, shared.Pagination, error) {
	if customerID == 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	transactions, total, err := s.repo.ListTransactions(ctx, customerID, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return transactions, shared.NewPagination(page, perPage, total), nil
}

// applyTransaction computes the new balance per transaction type.
func applyTransaction(before decimal.Decimal, kind TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case TypeCredit:
		return before.Add(amount)
	case TypePayment, TypeRefund:
		return decimal.Max(before.Sub(amount), decimal.Zero)
	default: // adjustment, signed
		return decimal.Max(before.Add(amount), decimal.Zero)
	}
}

func validatePost(input PostInput) error {
	if input.CustomerID == 0 {
		return fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if input.ActorID == 0 {
		return fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, input.Type)
	}
	if input.Type == TypeAdjustment {
		if input.Amount.IsZero() {
			return fmt.Errorf("%w: adjustment amount must be non zero", shared.ErrValidation)
		}
		return nil
	}
	if input.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	return nil
}
