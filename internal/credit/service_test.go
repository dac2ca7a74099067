package credit

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

type memoryRepo struct {
	balances     map[int64]Balance
	transactions []Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: map[int64]Balance{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, staged: map[int64]Balance{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, balance := range tx.staged {
		r.balances[id] = balance
	}
	r.transactions = append(r.transactions, tx.inserted...)
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, customerID int64) (Balance, error) {
	balance, ok := r.balances[customerID]
	if !ok {
		return Balance{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, customerID)
	}
	return balance, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, customerID int64, page, perPage int) ([]Transaction, int, error) {
	matched := []Transaction{}
	for _, txn := range r.transactions {
		if txn.CustomerID == customerID {
			matched = append(matched, txn)
		}
	}
	return matched, len(matched), nil
}

type memoryTx struct {
	repo     *memoryRepo
	staged   map[int64]Balance
	inserted []Transaction
}

func (t *memoryTx) GetBalanceForUpdate(ctx context.Context, customerID int64) (Balance, error) {
	if balance, ok := t.staged[customerID]; ok {
		return balance, nil
	}
	return t.repo.GetBalance(ctx, customerID)
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	txn.ID = int64(len(t.repo.transactions)+len(t.inserted)) + 1
	t.inserted = append(t.inserted, txn)
	return txn.ID, nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, balance Balance) error {
	current, ok := t.staged[balance.CustomerID]
	if !ok {
		current, ok = t.repo.balances[balance.CustomerID]
	}
	if !ok || current.Version != balance.Version {
		return fmt.Errorf("%w: stale balance", shared.ErrConcurrencyConflict)
	}
	balance.Version++
	t.staged[balance.CustomerID] = balance
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seededLedger(balance string) (*Ledger, *memoryRepo) {
	repo := newMemoryRepo()
	repo.balances[1] = Balance{CustomerID: 1, Amount: dec(balance), Version: 1}
	return NewLedger(repo, nil), repo
}

func TestPaymentReducesBalance(t *testing.T) {
	ledger, _ := seededLedger("120")

	txn, err := ledger.Post(context.Background(), PostInput{CustomerID: 1, Type: TypePayment, Amount: dec("50"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, txn.BalanceBefore.Equal(dec("120")))
	require.True(t, txn.BalanceAfter.Equal(dec("70")))

	balance, err := ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, balance.Amount.Equal(dec("70")))
}

func TestPaymentFloorsAtZero(t *testing.T) {
	ledger, _ := seededLedger("70")

	txn, err := ledger.Post(context.Background(), PostInput{CustomerID: 1, Type: TypePayment, Amount: dec("200"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, txn.BalanceAfter.IsZero(), "payment never drives balance negative")

	balance, err := ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, balance.Amount.IsZero())
}

func TestCreditAdds(t *testing.T) {
	ledger, _ := seededLedger("10")

	txn, err := ledger.Post(context.Background(), PostInput{CustomerID: 1, Type: TypeCredit, Amount: dec("25.50"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, txn.BalanceAfter.Equal(dec("35.50")))
}

func TestAdjustmentMovesEitherWayAndFloors(t *testing.T) {
	ledger, _ := seededLedger("30")
	ctx := context.Background()

	up, err := ledger.Post(ctx, PostInput{CustomerID: 1, Type: TypeAdjustment, Amount: dec("15"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, up.BalanceAfter.Equal(dec("45")))

	down, err := ledger.Post(ctx, PostInput{CustomerID: 1, Type: TypeAdjustment, Amount: dec("-100"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, down.BalanceAfter.IsZero(), "adjustment floors at zero")
}

func TestTransactionChainIsGapless(t *testing.T) {
	ledger, repo := seededLedger("0")
	ctx := context.Background()

	inputs := []PostInput{
		{CustomerID: 1, Type: TypeCredit, Amount: dec("100"), ActorID: 9},
		{CustomerID: 1, Type: TypePayment, Amount: dec("40"), ActorID: 9},
		{CustomerID: 1, Type: TypeRefund, Amount: dec("10"), ActorID: 9},
	}
	for _, input := range inputs {
		_, err := ledger.Post(ctx, input)
		require.NoError(t, err)
	}

	prev := dec("0")
	for _, txn := range repo.transactions {
		require.True(t, txn.BalanceBefore.Equal(prev), "each transaction starts from the previous balance")
		prev = txn.BalanceAfter
	}
	balance, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, balance.Amount.Equal(prev))
}

func TestPostValidation(t *testing.T) {
	ledger, _ := seededLedger("10")
	ctx := context.Background()

	cases := []PostInput{
		{Type: TypeCredit, Amount: dec("1"), ActorID: 9},
		{CustomerID: 1, Type: TypeCredit, Amount: dec("1")},
		{CustomerID: 1, Type: "barter", Amount: dec("1"), ActorID: 9},
		{CustomerID: 1, Type: TypeCredit, Amount: dec("-1"), ActorID: 9},
		{CustomerID: 1, Type: TypeAdjustment, Amount: decimal.Zero, ActorID: 9},
	}
	for _, input := range cases {
		_, err := ledger.Post(ctx, input)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestUnknownCustomerNotFound(t *testing.T) {
	ledger := NewLedger(newMemoryRepo(), nil)

	_, err := ledger.Post(context.Background(), PostInput{CustomerID: 42, Type: TypeCredit, Amount: dec("1"), ActorID: 9})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = ledger.GetBalance(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
