package adjustment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/inventory"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/db"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Repository persists adjustments in PostgreSQL.
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
		return errors.New("adjustment repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NextNumber bumps the per-year sequence atomically and returns it.
func (r *txRepository) NextNumber(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO adjustment_counters (year, seq) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET seq = adjustment_counters.seq + 1
RETURNING seq`, year).Scan(&seq)
	if err != nil {
		return 0, db.MapError(err)
	}
	return seq, nil
}

func (r *txRepository) Insert(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_adjustments
(id, number, location_id, reason, status, description, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		adj.ID, adj.Number, adj.LocationID, string(adj.Reason), string(adj.Status),
		emptyToNull(adj.Description), adj.CreatedBy, adj.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: adjustment number %s taken", shared.ErrConcurrencyConflict, adj.Number)
		}
		return db.MapError(err)
	}
	for _, item := range adj.Items {
		_, err := r.tx.Exec(ctx, `INSERT INTO stock_adjustment_items
(adjustment_id, product_id, system_quantity, actual_quantity, unit_cost, batch_number, expiry_date, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			adj.ID, item.ProductID, item.SystemQuantity, item.ActualQuantity, item.UnitCost,
			emptyToNull(item.BatchNumber), item.ExpiryDate, emptyToNull(item.Note))
		if err != nil {
			return db.MapError(err)
		}
	}
	return nil
}

const headerColumns = `id, number, location_id, reason, status, description, created_by, submitted_by, decided_by, decision_note, created_at, submitted_at, decided_at`

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM stock_adjustments WHERE id=$1 FOR UPDATE`, id)
	adj, err := scanAdjustment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, fmt.Errorf("%w: adjustment %s", shared.ErrNotFound, id)
		}
		return Adjustment{}, err
	}
	adj.Items, err = loadItems(ctx, r.tx, id)
	return adj, err
}

func (r *txRepository) SetStatus(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_adjustments SET
status=$2, submitted_by=$3, submitted_at=$4, decided_by=$5, decided_at=$6, decision_note=$7
WHERE id=$1`,
		adj.ID, string(adj.Status), adj.SubmittedBy, adj.SubmittedAt, adj.DecidedBy, adj.DecidedAt, emptyToNull(adj.DecisionNote))
	return db.MapError(err)
}

// Ledger binds stock movement writes to this transaction.
func (r *txRepository) Ledger() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM stock_adjustments WHERE id=$1`, id)
	adj, err := scanAdjustment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, fmt.Errorf("%w: adjustment %s", shared.ErrNotFound, id)
		}
		return Adjustment{}, err
	}
	adj.Items, err = loadItems(ctx, r.pool, id)
	return adj, err
}

// List pages through adjustment headers, newest first. Items are
// loaded in one extra query for the page.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Adjustment, int, error) {
	f := shared.NewFilter()
	if filter.LocationID != 0 {
		f.Equal("location_id", filter.LocationID)
	}
	if filter.Status != "" {
		f.Equal("status", string(filter.Status))
	}
	if filter.Reason != "" {
		f.Equal("reason", string(filter.Reason))
	}
	f.Search([]string{"number", "description"}, filter.Search)

	where, args := f.Where()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT %s FROM stock_adjustments%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, headerColumns, where, f.NextArg(), f.NextArg()+1)
	rows, err := r.pool.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	adjustments := []Adjustment{}
	ids := []uuid.UUID{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, err
		}
		adjustments = append(adjustments, adj)
		ids = append(ids, adj.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return adjustments, total, nil
	}

	itemRows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_adjustment_items WHERE adjustment_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()
	byID := map[uuid.UUID][]Item{}
	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, 0, err
		}
		byID[item.AdjustmentID] = append(byID[item.AdjustmentID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range adjustments {
		adjustments[i].Items = byID[adjustments[i].ID]
	}
	return adjustments, total, nil
}

const itemColumns = `id, adjustment_id, product_id, system_quantity, actual_quantity, unit_cost, batch_number, expiry_date, note`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, id uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM stock_adjustment_items WHERE adjustment_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdjustment(row rowScanner) (Adjustment, error) {
	var adj Adjustment
	var reason, status string
	var description, note *string
	err := row.Scan(&adj.ID, &adj.Number, &adj.LocationID, &reason, &status, &description,
		&adj.CreatedBy, &adj.SubmittedBy, &adj.DecidedBy, &note, &adj.CreatedAt, &adj.SubmittedAt, &adj.DecidedAt)
	if err != nil {
		return Adjustment{}, err
	}
	adj.Reason = Reason(reason)
	adj.Status = Status(status)
	if description != nil {
		adj.Description = *description
	}
	if note != nil {
		adj.DecisionNote = *note
	}
	return adj, nil
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var batch, note *string
	err := row.Scan(&item.ID, &item.AdjustmentID, &item.ProductID, &item.SystemQuantity,
		&item.ActualQuantity, &item.UnitCost, &batch, &item.ExpiryDate, &note)
	if err != nil {
		return Item{}, err
	}
	if batch != nil {
		item.BatchNumber = *batch
	}
	if note != nil {
		item.Note = *note
	}
	return item, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
