package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/observability"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Checker validates requested quantities against current positions.
// It is a pure read used as a pre-flight gate; a reservation or sale
// racing past it is caught at movement time, not here.
type Checker struct {
	repo    RepositoryPort
	metrics *observability.Metrics
}

// NewChecker builds the Checker. metrics may be nil.
func NewChecker(repo RepositoryPort, metrics *observability.Metrics) *Checker {
	return &Checker{repo: repo, metrics: metrics}
}

// Check returns the subset of requested lines whose available quantity
// does not cover the request. An empty result means every line fits.
func (c *Checker) Check(ctx context.Context, locationID int64, lines []AvailabilityLine) ([]Shortfall, error) {
	if locationID == 0 {
		return nil, fmt.Errorf("%w: location required", shared.ErrValidation)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == 0 {
			return nil, fmt.Errorf("%w: product required on every line", shared.ErrValidation)
		}
		if line.Quantity.Sign() <= 0 {
			return nil, fmt.Errorf("%w: requested quantity must be positive", shared.ErrValidation)
		}
		ids = append(ids, line.ProductID)
	}

	var (
		positions map[int64]Position
		names     map[int64]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		positions, err = c.repo.GetPositions(gctx, locationID, ids)
		return err
	})
	g.Go(func() error {
		var err error
		names, err = c.repo.ProductNames(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	shortfalls := make([]Shortfall, 0)
	for _, line := range lines {
		available := decimal.Zero
		if pos, ok := positions[line.ProductID]; ok {
			available = pos.Available()
		}
		if available.LessThan(line.Quantity) {
			shortfalls = append(shortfalls, Shortfall{
				ProductID:         line.ProductID,
				ProductName:       names[line.ProductID],
				AvailableQuantity: available,
				RequestedQuantity: line.Quantity,
			})
		}
	}
	c.metrics.CountShortfalls(len(shortfalls))
	return shortfalls, nil
}
