package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	positions map[string]Position
	movements []StockMovement
	names     map[int64]string
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: map[string]Position{}, names: map[int64]string{}}
}

func positionKey(productID, locationID int64) string {
	return fmt.Sprintf("%d/%d", productID, locationID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, staged: map[string]Position{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (r *memoryRepo) GetPosition(ctx context.Context, productID, locationID int64) (Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[positionKey(productID, locationID)]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return pos, nil
}

func (r *memoryRepo) GetPositions(ctx context.Context, locationID int64, productIDs []int64) (map[int64]Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]Position{}
	for _, id := range productIDs {
		if pos, ok := r.positions[positionKey(id, locationID)]; ok {
			out[id] = pos
		}
	}
	return out, nil
}

func (r *memoryRepo) ProductNames(ctx context.Context, productIDs []int64) (map[int64]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]string{}
	for _, id := range productIDs {
		if name, ok := r.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []StockMovement{}
	for _, m := range r.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && m.LocationID != filter.LocationID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		matched = append(matched, m)
	}
	return matched, len(matched), nil
}

// memoryTx stages writes and applies them only when the callback
// succeeds, mirroring the all-or-nothing transaction semantics.
type memoryTx struct {
	repo      *memoryRepo
	staged    map[string]Position
	inserted  []StockMovement
	nextLocal int64
}

func (t *memoryTx) GetPositionForUpdate(ctx context.Context, productID, locationID int64) (Position, error) {
	key := positionKey(productID, locationID)
	if pos, ok := t.staged[key]; ok {
		return pos, nil
	}
	pos, ok := t.repo.positions[key]
	if !ok {
		return Position{ProductID: productID, LocationID: locationID}, ErrPositionNotFound
	}
	return pos, nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	t.nextLocal++
	m.ID = t.repo.nextID + t.nextLocal
	t.inserted = append(t.inserted, m)
	return m.ID, nil
}

func (t *memoryTx) InsertPosition(ctx context.Context, pos Position) error {
	key := positionKey(pos.ProductID, pos.LocationID)
	if _, ok := t.staged[key]; ok {
		return fmt.Errorf("%w: position exists", shared.ErrConcurrencyConflict)
	}
	if _, ok := t.repo.positions[key]; ok {
		return fmt.Errorf("%w: position exists", shared.ErrConcurrencyConflict)
	}
	pos.Version = 1
	t.staged[key] = pos
	return nil
}

func (t *memoryTx) UpdatePosition(ctx context.Context, pos Position) error {
	key := positionKey(pos.ProductID, pos.LocationID)
	current, ok := t.staged[key]
	if !ok {
		current, ok = t.repo.positions[key]
	}
	if !ok || current.Version != pos.Version {
		return fmt.Errorf("%w: stale position", shared.ErrConcurrencyConflict)
	}
	pos.Version++
	t.staged[key] = pos
	return nil
}

func (t *memoryTx) commit() {
	for key, pos := range t.staged {
		t.repo.positions[key] = pos
	}
	t.repo.movements = append(t.repo.movements, t.inserted...)
	t.repo.nextID += t.nextLocal
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestLedger(repo *memoryRepo) *Ledger {
	return NewLedger(repo, nil, nil, nil)
}

func TestRecordPurchaseCreatesPositionAndMovement(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)

	m, err := ledger.Record(context.Background(), RecordInput{
		ProductID: 1, LocationID: 1, Kind: MovementPurchase,
		Quantity: dec("10"), UnitCost: decPtr("5"), ActorID: 9,
	})
	require.NoError(t, err)
	require.True(t, m.QuantityBefore.IsZero())
	require.True(t, m.QuantityAfter.Equal(dec("10")))
	require.True(t, m.TotalCost.Equal(dec("50")))

	pos, err := ledger.GetPosition(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(dec("10")))
	require.True(t, pos.AverageCost.Equal(dec("5")))
	require.True(t, pos.LastUnitCost.Equal(dec("5")))
	require.NotNil(t, pos.LastRestockAt)
	require.Nil(t, pos.LastSaleAt)
}

func TestWeightedAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("5.00"), ActorID: 9})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("5"), UnitCost: decPtr("8.00"), ActorID: 9})
	require.NoError(t, err)

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.AverageCost.Equal(dec("6")), "got %s", pos.AverageCost)
	require.True(t, pos.OnHand.Equal(dec("15")))
	require.True(t, pos.TotalValue().Equal(dec("90")))
}

func TestOutboundUsesAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("5"), ActorID: 9})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("5"), UnitCost: decPtr("8"), ActorID: 9})
	require.NoError(t, err)

	sale, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-3"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, sale.UnitCost.Equal(dec("6")))
	require.True(t, sale.TotalCost.Equal(dec("-18")))

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.AverageCost.Equal(dec("6")), "average cost must not move on outbound")
	require.True(t, pos.OnHand.Equal(dec("12")))
	require.NotNil(t, pos.LastSaleAt)
}

func TestInboundWithoutUnitCostLeavesAverage(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("5"), ActorID: 9})
	require.NoError(t, err)
	m, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementAdjustment, Quantity: dec("4"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, m.UnitCost.Equal(dec("5")), "valued at current average")

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.AverageCost.Equal(dec("5")))
	require.True(t, pos.OnHand.Equal(dec("14")))
}

func TestNegativeOnHandAllowed(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)

	m, err := ledger.Record(context.Background(), RecordInput{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-5"), ActorID: 9})
	require.NoError(t, err)
	require.True(t, m.QuantityAfter.Equal(dec("-5")))

	pos, err := ledger.GetPosition(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(dec("-5")))
}

func TestReservedClampedWhenStockDrops(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("2"), ActorID: 9})
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, 1, 1, dec("8")))

	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-7"), ActorID: 9})
	require.NoError(t, err)

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(dec("3")))
	require.True(t, pos.Reserved.Equal(dec("3")), "reserved follows on-hand down")

	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-5"), ActorID: 9})
	require.NoError(t, err)

	pos, err = ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(dec("-2")))
	require.True(t, pos.Reserved.IsZero(), "reserved never goes negative")
}

func TestReserveInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	err := ledger.Reserve(ctx, 1, 1, dec("1"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock, "missing position reserves nothing")

	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("2"), ActorID: 9})
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, 1, 1, dec("8")))

	err = ledger.Reserve(ctx, 1, 1, dec("3"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Reserved.Equal(dec("8")))
}

func TestReleaseClampsAndMissingIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	require.NoError(t, ledger.Release(ctx, 1, 1, dec("5")), "release on missing position is a no-op")

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("2"), ActorID: 9})
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(ctx, 1, 1, dec("4")))
	require.NoError(t, ledger.Release(ctx, 1, 1, dec("9")))

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Reserved.IsZero())
}

func TestReplayRebuildsPosition(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	inputs := []RecordInput{
		{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("5"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-3"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("6"), UnitCost: decPtr("7"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementDamage, Quantity: dec("-2"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementReturn, Quantity: dec("1"), ActorID: 9},
	}
	for _, input := range inputs {
		_, err := ledger.Record(ctx, input)
		require.NoError(t, err)
	}

	sum := decimal.Zero
	prevAfter := decimal.Zero
	for _, m := range repo.movements {
		require.True(t, m.QuantityBefore.Equal(prevAfter), "movement chain must be gapless")
		require.True(t, m.QuantityAfter.Equal(m.QuantityBefore.Add(m.Quantity)))
		sum = sum.Add(m.Quantity)
		prevAfter = m.QuantityAfter
	}

	pos, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(sum), "replaying the log reproduces on-hand")
}

func TestRecordValidation(t *testing.T) {
	ledger := newTestLedger(newMemoryRepo())
	ctx := context.Background()

	cases := []RecordInput{
		{LocationID: 1, Kind: MovementSale, Quantity: dec("1"), ActorID: 9},
		{ProductID: 1, Kind: MovementSale, Quantity: dec("1"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("1")},
		{ProductID: 1, LocationID: 1, Kind: "levitation", Quantity: dec("1"), ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: decimal.Zero, ActorID: 9},
		{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("1"), UnitCost: decPtr("-1"), ActorID: 9},
	}
	for _, input := range cases {
		_, err := ledger.Record(ctx, input)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestStaleSnapshotConflicts(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("2"), ActorID: 9})
	require.NoError(t, err)

	stale, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)

	_, err = ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementSale, Quantity: dec("-1"), ActorID: 9})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePosition(ctx, stale)
	})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict, "write from a stale snapshot must lose")
}

func TestGetPositionNotFound(t *testing.T) {
	ledger := newTestLedger(newMemoryRepo())
	_, err := ledger.GetPosition(context.Background(), 7, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransferMovesStockAtAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("10"), UnitCost: decPtr("5"), ActorID: 9})
	require.NoError(t, err)

	out, in, err := ledger.Transfer(ctx, TransferInput{ProductID: 1, SourceLocation: 1, DestLocation: 2, Quantity: dec("4"), ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, MovementTransferOut, out.Kind)
	require.Equal(t, MovementTransferIn, in.Kind)
	require.True(t, out.Quantity.Equal(dec("-4")))
	require.True(t, in.Quantity.Equal(dec("4")))
	require.True(t, in.UnitCost.Equal(dec("5")), "inbound leg carries the source average cost")
	require.NotNil(t, out.Reference)
	require.Equal(t, ReferenceTransfer, out.Reference.Kind)

	source, err := ledger.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	dest, err := ledger.GetPosition(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, source.OnHand.Equal(dec("6")))
	require.True(t, dest.OnHand.Equal(dec("4")))
	require.True(t, dest.AverageCost.Equal(dec("5")))
}

func TestTransferValidation(t *testing.T) {
	ledger := newTestLedger(newMemoryRepo())
	ctx := context.Background()

	_, _, err := ledger.Transfer(ctx, TransferInput{ProductID: 1, SourceLocation: 1, DestLocation: 1, Quantity: dec("4"), ActorID: 9})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ledger.Transfer(ctx, TransferInput{ProductID: 1, SourceLocation: 1, DestLocation: 2, Quantity: dec("-4"), ActorID: 9})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListMovementsPaginates(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Record(ctx, RecordInput{ProductID: 1, LocationID: 1, Kind: MovementPurchase, Quantity: dec("1"), UnitCost: decPtr("2"), ActorID: 9})
		require.NoError(t, err)
	}

	movements, page, err := ledger.ListMovements(ctx, MovementFilter{ProductID: 1, Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, movements, 3, "fake repository does not page; totals still count")
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)
}
