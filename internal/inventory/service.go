package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/observability"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPosition(ctx context.Context, productID, locationID int64) (Position, error)
	GetPositions(ctx context.Context, locationID int64, productIDs []int64) (map[int64]Position, error)
	ProductNames(ctx context.Context, productIDs []int64) (map[int64]string, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error)
}

// TxRepository exposes transactional operations used by the ledger.
// Both movement and position writes go through the same transaction so
// a failed write leaves nothing behind.
type TxRepository interface {
	GetPositionForUpdate(ctx context.Context, productID, locationID int64) (Position, error)
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	InsertPosition(ctx context.Context, pos Position) error
	UpdatePosition(ctx context.Context, pos Position) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrPositionNotFound indicates a missing position row.
var ErrPositionNotFound = errors.New("inventory position not found")

// Ledger records stock movements and maintains positions. It never
// rejects a movement for insufficient stock; callers wanting a
// guarantee consult the Checker first and accept the remaining race.
type Ledger struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     *observability.Metrics
	clock       func() time.Time
}

// NewLedger builds the Ledger. audit, idempotency and metrics may be nil.
func NewLedger(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		metrics:     metrics,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and persists one movement together with the updated
// position in a single transaction. A stale position read surfaces as
// shared.ErrConcurrencyConflict and must be retried by the caller.
func (s *Ledger) Record(ctx context.Context, input RecordInput) (StockMovement, error) {
	if err := validateRecord(input); err != nil {
		return StockMovement{}, err
	}

	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			return StockMovement{}, err
		}
		insertedKey = true
	}

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.recordLocked(ctx, tx, input)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.metrics.CountLedgerConflict()
		}
		return StockMovement{}, err
	}

	s.metrics.CountMovement(string(movement.Kind))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("inventory:%s", movement.Kind),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id":  movement.ProductID,
				"location_id": movement.LocationID,
				"quantity":    movement.Quantity.String(),
				"reason":      movement.Reason,
			},
		})
	}
	return movement, nil
}

// RecordIn posts a movement inside an externally managed transaction.
// The adjustment workflow uses this to make a multi-line approval
// all-or-nothing.
func (s *Ledger) RecordIn(ctx context.Context, tx TxRepository, input RecordInput) (StockMovement, error) {
	if err := validateRecord(input); err != nil {
		return StockMovement{}, err
	}
	return s.recordLocked(ctx, tx, input)
}

func (s *Ledger) recordLocked(ctx context.Context, tx TxRepository, input RecordInput) (StockMovement, error) {
	now := s.clock()

	pos, err := tx.GetPositionForUpdate(ctx, input.ProductID, input.LocationID)
	created := false
	switch {
	case errors.Is(err, ErrPositionNotFound):
		pos = Position{ProductID: input.ProductID, LocationID: input.LocationID}
		created = true
	case err != nil:
		return StockMovement{}, err
	}

	before := pos.OnHand
	after := before.Add(input.Quantity)

	unitCost := pos.AverageCost
	if input.UnitCost != nil {
		unitCost = *input.UnitCost
	}
	totalCost := input.Quantity.Mul(unitCost)

	// Weighted-average cost moves only on cost-affecting inbound
	// movements; consuming movements leave it untouched.
	if input.Quantity.Sign() > 0 && input.UnitCost != nil {
		if after.Sign() > 0 {
			pos.AverageCost = before.Mul(pos.AverageCost).Add(input.Quantity.Mul(unitCost)).Div(after)
		} else {
			pos.AverageCost = unitCost
		}
	}

	pos.OnHand = after
	pos.LastUnitCost = unitCost
	// reserved must not exceed on-hand once the movement lands.
	if pos.Reserved.GreaterThan(after) {
		pos.Reserved = decimal.Max(after, decimal.Zero)
	}
	pos.LastMovementAt = &now
	if input.Quantity.Sign() > 0 {
		pos.LastRestockAt = &now
	}
	if input.Kind == MovementSale {
		pos.LastSaleAt = &now
	}
	pos.UpdatedAt = now

	movement := StockMovement{
		ProductID:      input.ProductID,
		LocationID:     input.LocationID,
		Kind:           input.Kind,
		Quantity:       input.Quantity,
		QuantityBefore: before,
		QuantityAfter:  after,
		UnitCost:       unitCost,
		TotalCost:      totalCost,
		Reference:      input.Reference,
		BatchNumber:    input.BatchNumber,
		ExpiryDate:     input.ExpiryDate,
		ActorID:        input.ActorID,
		Reason:         input.Reason,
		Notes:          input.Notes,
		CreatedAt:      now,
	}

	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return StockMovement{}, err
	}
	movement.ID = id

	if created {
		err = tx.InsertPosition(ctx, pos)
	} else {
		err = tx.UpdatePosition(ctx, pos)
	}
	if err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

// Reserve increments the reserved quantity, failing with
// shared.ErrInsufficientStock when available stock does not cover the
// request. Reserve and Release are the only mutators of reserved.
func (s *Ledger) Reserve(ctx context.Context, productID, locationID int64, quantity decimal.Decimal) error {
	if productID == 0 || locationID == 0 {
		return fmt.Errorf("%w: product and location required", shared.ErrValidation)
	}
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pos, err := tx.GetPositionForUpdate(ctx, productID, locationID)
		if errors.Is(err, ErrPositionNotFound) {
			return fmt.Errorf("%w: available 0, requested %s", shared.ErrInsufficientStock, quantity)
		}
		if err != nil {
			return err
		}
		if pos.Available().LessThan(quantity) {
			return fmt.Errorf("%w: available %s, requested %s", shared.ErrInsufficientStock, pos.Available(), quantity)
		}
		pos.Reserved = pos.Reserved.Add(quantity)
		pos.UpdatedAt = s.clock()
		return tx.UpdatePosition(ctx, pos)
	})
}

// Release decrements reserved by min(quantity, reserved); it never
// drives reserved negative and releasing on a missing position is a
// no-op.
func (s *Ledger) Release(ctx context.Context, productID, locationID int64, quantity decimal.Decimal) error {
	if productID == 0 || locationID == 0 {
		return fmt.Errorf("%w: product and location required", shared.ErrValidation)
	}
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: release quantity must be positive", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pos, err := tx.GetPositionForUpdate(ctx, productID, locationID)
		if errors.Is(err, ErrPositionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		release := decimal.Min(quantity, pos.Reserved)
		if release.Sign() <= 0 {
			return nil
		}
		pos.Reserved = pos.Reserved.Sub(release)
		pos.UpdatedAt = s.clock()
		return tx.UpdatePosition(ctx, pos)
	})
}

// Transfer posts a transfer_out at the source and a transfer_in at the
// destination inside one transaction. Position locks are taken in
// ascending location-id order so two opposite transfers cannot
// deadlock. The inbound leg carries the source's average cost unless
// an explicit unit cost is given.
func (s *Ledger) Transfer(ctx context.Context, input TransferInput) (StockMovement, StockMovement, error) {
	if input.ProductID == 0 || input.SourceLocation == 0 || input.DestLocation == 0 {
		return StockMovement{}, StockMovement{}, fmt.Errorf("%w: product and locations required", shared.ErrValidation)
	}
	if input.SourceLocation == input.DestLocation {
		return StockMovement{}, StockMovement{}, fmt.Errorf("%w: source and destination must differ", shared.ErrValidation)
	}
	if input.Quantity.Sign() <= 0 {
		return StockMovement{}, StockMovement{}, fmt.Errorf("%w: transfer quantity must be positive", shared.ErrValidation)
	}
	if input.ActorID == 0 {
		return StockMovement{}, StockMovement{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if input.UnitCost != nil && input.UnitCost.Sign() < 0 {
		return StockMovement{}, StockMovement{}, fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}

	reference := input.Reference
	if reference == nil {
		reference = &Reference{Kind: ReferenceTransfer, ID: fmt.Sprintf("%d-%d", input.SourceLocation, input.DestLocation)}
	}

	var out, in StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		first, second := input.SourceLocation, input.DestLocation
		if first > second {
			first, second = second, first
		}
		for _, loc := range []int64{first, second} {
			if _, err := tx.GetPositionForUpdate(ctx, input.ProductID, loc); err != nil && !errors.Is(err, ErrPositionNotFound) {
				return err
			}
		}

		var err error
		out, err = s.recordLocked(ctx, tx, RecordInput{
			ProductID:  input.ProductID,
			LocationID: input.SourceLocation,
			Kind:       MovementTransferOut,
			Quantity:   input.Quantity.Neg(),
			UnitCost:   input.UnitCost,
			Reference:  reference,
			ActorID:    input.ActorID,
			Notes:      input.Notes,
		})
		if err != nil {
			return err
		}

		inCost := out.UnitCost
		if input.UnitCost != nil {
			inCost = *input.UnitCost
		}
		in, err = s.recordLocked(ctx, tx, RecordInput{
			ProductID:  input.ProductID,
			LocationID: input.DestLocation,
			Kind:       MovementTransferIn,
			Quantity:   input.Quantity,
			UnitCost:   &inCost,
			Reference:  reference,
			ActorID:    input.ActorID,
			Notes:      input.Notes,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.metrics.CountLedgerConflict()
		}
		return StockMovement{}, StockMovement{}, err
	}
	s.metrics.CountMovement(string(MovementTransferOut))
	s.metrics.CountMovement(string(MovementTransferIn))
	return out, in, nil
}

// GetPosition exposes the read model for reporting collaborators.
func (s *Ledger) GetPosition(ctx context.Context, productID, locationID int64) (Position, error) {
	if productID == 0 || locationID == 0 {
		return Position{}, fmt.Errorf("%w: product and location required", shared.ErrValidation)
	}
	pos, err := s.repo.GetPosition(ctx, productID, locationID)
	if errors.Is(err, ErrPositionNotFound) {
		return Position{}, fmt.Errorf("%w: position %d/%d", shared.ErrNotFound, productID, locationID)
	}
	return pos, err
}

// ListMovements returns the movement history matching the filter.
func (s *Ledger) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, shared.Pagination, error) {
	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func validateRecord(input RecordInput) error {
	if input.ProductID == 0 {
		return fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.LocationID == 0 {
		return fmt.Errorf("%w: location required", shared.ErrValidation)
	}
	if input.ActorID == 0 {
		return fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if !input.Kind.Valid() {
		return fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, input.Kind)
	}
	if input.Quantity.IsZero() {
		return fmt.Errorf("%w: quantity change must be non zero", shared.ErrValidation)
	}
	if input.UnitCost != nil && input.UnitCost.Sign() < 0 {
		return fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}
	return nil
}
