package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/db"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Repository persists movements and positions in PostgreSQL.
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
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds ledger writes to an existing transaction. The
// adjustment workflow uses this to share one transaction across its
// own writes and the movements it posts.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

const positionColumns = `product_id, location_id, on_hand, reserved, average_cost, last_unit_cost, last_movement_at, last_restock_at, last_sale_at, version, updated_at`

func (r *txRepository) GetPositionForUpdate(ctx context.Context, productID, locationID int64) (Position, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+positionColumns+` FROM inventory_positions WHERE product_id=$1 AND location_id=$2 FOR UPDATE`, productID, locationID)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{ProductID: productID, LocationID: locationID}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var refKind, refID any
	if m.Reference != nil {
		refKind = string(m.Reference.Kind)
		refID = m.Reference.ID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, location_id, movement_type, quantity, quantity_before, quantity_after, unit_cost, total_cost, reference_kind, reference_id, batch_number, expiry_date, actor_id, reason, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		m.ProductID, m.LocationID, string(m.Kind), m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.UnitCost, m.TotalCost, refKind, refID, emptyToNull(m.BatchNumber), m.ExpiryDate,
		m.ActorID, emptyToNull(m.Reason), emptyToNull(m.Notes), m.CreatedAt).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// InsertPosition creates the lazily initialised position row. A unique
// violation means another transaction created it first; the whole
// operation must be retried.
func (r *txRepository) InsertPosition(ctx context.Context, pos Position) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_positions
(product_id, location_id, on_hand, reserved, average_cost, last_unit_cost, last_movement_at, last_restock_at, last_sale_at, version, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10)`,
		pos.ProductID, pos.LocationID, pos.OnHand, pos.Reserved, pos.AverageCost, pos.LastUnitCost,
		pos.LastMovementAt, pos.LastRestockAt, pos.LastSaleAt, pos.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: position %d/%d created concurrently", shared.ErrConcurrencyConflict, pos.ProductID, pos.LocationID)
		}
		return db.MapError(err)
	}
	return nil
}

// UpdatePosition writes the position guarded by its version. Zero rows
// affected means the snapshot the caller computed from is stale.
func (r *txRepository) UpdatePosition(ctx context.Context, pos Position) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_positions SET
on_hand=$3, reserved=$4, average_cost=$5, last_unit_cost=$6, last_movement_at=$7, last_restock_at=$8, last_sale_at=$9, version=version+1, updated_at=$10
WHERE product_id=$1 AND location_id=$2 AND version=$11`,
		pos.ProductID, pos.LocationID, pos.OnHand, pos.Reserved, pos.AverageCost, pos.LastUnitCost,
		pos.LastMovementAt, pos.LastRestockAt, pos.LastSaleAt, pos.UpdatedAt, pos.Version)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: position %d/%d changed since read", shared.ErrConcurrencyConflict, pos.ProductID, pos.LocationID)
	}
	return nil
}

func (r *Repository) GetPosition(ctx context.Context, productID, locationID int64) (Position, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM inventory_positions WHERE product_id=$1 AND location_id=$2`, productID, locationID)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

func (r *Repository) GetPositions(ctx context.Context, locationID int64, productIDs []int64) (map[int64]Position, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+positionColumns+` FROM inventory_positions WHERE location_id=$1 AND product_id = ANY($2)`, locationID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	positions := make(map[int64]Position, len(productIDs))
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions[pos.ProductID] = pos
	}
	return positions, rows.Err()
}

func (r *Repository) ProductNames(ctx context.Context, productIDs []int64) (map[int64]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[int64]string, len(productIDs))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

const movementColumns = `m.id, m.product_id, m.location_id, m.movement_type, m.quantity, m.quantity_before, m.quantity_after, m.unit_cost, m.total_cost, m.reference_kind, m.reference_id, m.batch_number, m.expiry_date, m.actor_id, m.reason, m.notes, m.created_at`

// ListMovements pages through the movement log, newest first.
// Searchable field paths include the joined product name.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	f := shared.NewFilter()
	if filter.ProductID != 0 {
		f.Equal("m.product_id", filter.ProductID)
	}
	if filter.LocationID != 0 {
		f.Equal("m.location_id", filter.LocationID)
	}
	if filter.Kind != "" {
		f.Equal("m.movement_type", string(filter.Kind))
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	f.Between("m.created_at", from, to)
	f.Search([]string{"p.name", "m.reason", "m.notes", "m.batch_number"}, filter.Search)

	where, args := f.Where()
	base := ` FROM stock_movements m JOIN products p ON p.id = m.product_id` + where

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT %s%s ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d`, movementColumns, base, f.NextArg(), f.NextArg()+1)
	rows, err := r.pool.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	movements := []StockMovement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (Position, error) {
	var pos Position
	err := row.Scan(&pos.ProductID, &pos.LocationID, &pos.OnHand, &pos.Reserved, &pos.AverageCost,
		&pos.LastUnitCost, &pos.LastMovementAt, &pos.LastRestockAt, &pos.LastSaleAt, &pos.Version, &pos.UpdatedAt)
	return pos, err
}

func scanMovement(row rowScanner) (StockMovement, error) {
	var m StockMovement
	var refKind, refID, batch, reason, notes *string
	err := row.Scan(&m.ID, &m.ProductID, &m.LocationID, &m.Kind, &m.Quantity, &m.QuantityBefore,
		&m.QuantityAfter, &m.UnitCost, &m.TotalCost, &refKind, &refID, &batch, &m.ExpiryDate,
		&m.ActorID, &reason, &notes, &m.CreatedAt)
	if err != nil {
		return StockMovement{}, err
	}
	if refKind != nil && refID != nil {
		m.Reference = &Reference{Kind: ReferenceKind(*refKind), ID: *refID}
	}
	if batch != nil {
		m.BatchNumber = *batch
	}
	if reason != nil {
		m.Reason = *reason
	}
	if notes != nil {
		m.Notes = *notes
	}
	return m, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
