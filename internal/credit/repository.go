package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/db"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Repository persists credit transactions and balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("credit repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, customerID int64) (Balance, error) {
	var balance Balance
	err := r.tx.QueryRow(ctx, `SELECT id, credit_balance, version, updated_at FROM customers WHERE id=$1 FOR UPDATE`, customerID).
		Scan(&balance.CustomerID, &balance.Amount, &balance.Version, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, customerID)
		}
		return Balance{}, err
	}
	return balance, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credit_transactions
(customer_id, type, amount, balance_before, balance_after, actor_id, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		txn.CustomerID, string(txn.Type), txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		txn.ActorID, emptyToNull(txn.Notes), txn.CreatedAt).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// UpdateBalance writes the balance guarded by its version.
func (r *txRepository) UpdateBalance(ctx context.Context, balance Balance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE customers SET credit_balance=$2, version=version+1, updated_at=$3
WHERE id=$1 AND version=$4`,
		balance.CustomerID, balance.Amount, balance.UpdatedAt, balance.Version)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d balance changed since read", shared.ErrConcurrencyConflict, balance.CustomerID)
	}
	return nil
}

func (r *Repository) GetBalance(ctx context.Context, customerID int64) (Balance, error) {
	var balance Balance
	err := r.pool.QueryRow(ctx, `SELECT id, credit_balance, version, updated_at FROM customers WHERE id=$1`, customerID).
		Scan(&balance.CustomerID, &balance.Amount, &balance.Version, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, customerID)
		}
		return Balance{}, err
	}
	return balance, nil
}

// ListTransactions pages through a customer's history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, customerID int64, page, perPage int) ([]Transaction, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_transactions WHERE customer_id=$1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(page, perPage, total)
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, type, amount, balance_before, balance_after, actor_id, notes, created_at
FROM credit_transactions WHERE customer_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		customerID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := []Transaction{}
	for rows.Next() {
		var txn Transaction
		var kind string
		var notes *string
		if err := rows.Scan(&txn.ID, &txn.CustomerID, &kind, &txn.Amount, &txn.BalanceBefore,
			&txn.BalanceAfter, &txn.ActorID, &notes, &txn.CreatedAt); err != nil {
			return nil, 0, err
		}
		txn.Type = TransactionType(kind)
		if notes != nil {
			txn.Notes = *notes
		}
		transactions = append(transactions, txn)
	}
	return transactions, total, rows.Err()
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
