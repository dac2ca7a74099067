package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/rodniegwapo/techiko-pos-sub001/internal/jobs"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/cache"
)

// DiscrepancyScanJob sweeps inventory positions for states the ledger
// tolerates transiently but operators must resolve: negative on-hand
// (oversell) and reserved above on-hand.
type DiscrepancyScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Lock    *cache.Lock
}

// NewDiscrepancyScanJob initialises the scan handler.
func NewDiscrepancyScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, lock *cache.Lock) *DiscrepancyScanJob {
	return &DiscrepancyScanJob{Pool: pool, Logger: logger, Metrics: metrics, Lock: lock}
}

type discrepancy struct {
	ProductID  int64
	LocationID int64
	OnHand     string
	Reserved   string
	Kind       string
}

// Handle executes the discrepancy scan.
func (j *DiscrepancyScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("discrepancy scan: handler not configured")
	}
	var payload DiscrepancyScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	lockKey := cache.ScanLockKey("discrepancy")
	acquired, err := j.Lock.Acquire(ctx, lockKey, 10*time.Minute)
	if err != nil {
		return err
	}
	if !acquired {
		j.Logger.Info("discrepancy scan already running, skipping")
		return nil
	}
	defer func() { _ = j.Lock.Release(ctx, lockKey) }()

	tracker := j.Metrics.Track(TaskDiscrepancyScan)
	var resultErr error
	defer func() { resultErr = tracker.End(resultErr) }()

	start := time.Now()
	found, err := j.scan(ctx, payload)
	if err != nil {
		resultErr = err
		j.Logger.Error("discrepancy scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, d := range found {
		j.Logger.Warn("stock discrepancy detected",
			slog.String("kind", d.Kind),
			slog.Int64("product_id", d.ProductID),
			slog.Int64("location_id", d.LocationID),
			slog.String("on_hand", d.OnHand),
			slog.String("reserved", d.Reserved),
		)
		j.Metrics.AddDiscrepancies(d.Kind, d.LocationID, 1)
	}

	j.Logger.Info("completed discrepancy scan",
		slog.Int("discrepancies", len(found)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *DiscrepancyScanJob) scan(ctx context.Context, payload DiscrepancyScanPayload) ([]discrepancy, error) {
	query := `SELECT product_id, location_id, on_hand::text, reserved::text FROM inventory_positions
WHERE (on_hand < 0 OR reserved > on_hand)`
	args := []any{}
	if payload.LocationID != 0 {
		query += ` AND location_id = $1`
		args = append(args, payload.LocationID)
	}
	query += ` ORDER BY location_id, product_id`

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := []discrepancy{}
	for rows.Next() {
		var d discrepancy
		if err := rows.Scan(&d.ProductID, &d.LocationID, &d.OnHand, &d.Reserved); err != nil {
			return nil, err
		}
		if d.OnHand[0] == '-' {
			d.Kind = "negative_on_hand"
		} else {
			d.Kind = "reserved_over_on_hand"
		}
		found = append(found, d)
	}
	return found, rows.Err()
}
