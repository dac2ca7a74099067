package adjustment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/inventory"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/observability"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// ApprovalModule tags adjustment rows in the approval history.
const ApprovalModule = "stock_adjustment"

// RepositoryPort abstracts repository usage for the workflow.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Adjustment, error)
	List(ctx context.Context, filter Filter) ([]Adjustment, int, error)
}

// TxRepository exposes the transactional operations of the workflow.
// Ledger binds stock movement writes to the same transaction, making a
// multi-line approval all-or-nothing.
type TxRepository interface {
	NextNumber(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, adj Adjustment) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error)
	SetStatus(ctx context.Context, adj Adjustment) error
	Ledger() inventory.TxRepository
}

// LedgerPort posts stock movements inside an ongoing transaction.
type LedgerPort interface {
	RecordIn(ctx context.Context, tx inventory.TxRepository, input inventory.RecordInput) (inventory.StockMovement, error)
}

// ApprovalPort records workflow decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the draft → pending_approval → approved/rejected
// state machine.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	ledger    LedgerPort
	approvals ApprovalPort
	audit     AuditPort
	metrics   *observability.Metrics
	clock     func() time.Time
}

// NewService builds the Service. approvals, audit and metrics may be nil.
func NewService(logger *slog.Logger, repo RepositoryPort, ledger LedgerPort, approvals ApprovalPort, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		ledger:    ledger,
		approvals: approvals,
		audit:     audit,
		metrics:   metrics,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Create drafts a new adjustment with its counted lines. Numbers come
// from a per-year counter; a unique violation on the number means a
// racing creation won the same sequence, so the draft is retried.
func (s *Service) Create(ctx context.Context, input CreateInput) (Adjustment, error) {
	if err := validateCreate(input); err != nil {
		return Adjustment{}, err
	}

	now := s.clock()
	adj := Adjustment{
		ID:          uuid.New(),
		LocationID:  input.LocationID,
		Reason:      input.Reason,
		Status:      StatusDraft,
		Description: input.Description,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   now,
		Items:       make([]Item, 0, len(input.Items)),
	}
	for _, line := range input.Items {
		adj.Items = append(adj.Items, Item{
			AdjustmentID:   adj.ID,
			ProductID:      line.ProductID,
			SystemQuantity: line.SystemQuantity,
			ActualQuantity: line.ActualQuantity,
			UnitCost:       line.UnitCost,
			BatchNumber:    line.BatchNumber,
			ExpiryDate:     line.ExpiryDate,
			Note:           line.Note,
		})
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, err := tx.NextNumber(ctx, now.Year())
			if err != nil {
				return err
			}
			adj.Number = fmt.Sprintf("ADJ-%d-%03d", now.Year(), seq)
			return tx.Insert(ctx, adj)
		})
		if err == nil {
			s.recordAudit(ctx, input.CreatedBy, "adjustment:create", adj)
			return adj, nil
		}
		lastErr = err
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return Adjustment{}, err
		}
		s.logger.Warn("adjustment number collision, retrying", slog.String("number", adj.Number))
	}
	return Adjustment{}, lastErr
}

// Get returns one adjustment with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return s.repo.Get(ctx, id)
}

// List returns adjustments matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Adjustment, shared.Pagination, error) {
	adjustments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return adjustments, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// SubmitForApproval moves a draft to pending_approval.
func (s *Service) SubmitForApproval(ctx context.Context, id uuid.UUID, actorID int64) (Adjustment, error) {
	if actorID == 0 {
		return Adjustment{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adj.Status != StatusDraft {
			return fmt.Errorf("%w: cannot submit %s adjustment %s", shared.ErrInvalidStateTransition, adj.Status, adj.Number)
		}
		now := s.clock()
		adj.Status = StatusPendingApproval
		adj.SubmittedBy = &actorID
		adj.SubmittedAt = &now
		return tx.SetStatus(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: adj.ID, ActorID: actorID, Action: shared.ApprovalSubmit})
	}
	s.metrics.CountAdjustmentDecision("submit")
	s.recordAudit(ctx, actorID, "adjustment:submit", adj)
	return adj, nil
}

// Approve applies the adjustment: one stock movement per changed line,
// posted in the same transaction as the status change so a failing
// line rolls back the entire approval. Approving straight from draft
// is allowed and counts as an implicit submit by the approver.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approverID int64, note string) (Adjustment, error) {
	if approverID == 0 {
		return Adjustment{}, fmt.Errorf("%w: approver required", shared.ErrValidation)
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adj.Status.Terminal() {
			return fmt.Errorf("%w: cannot approve %s adjustment %s", shared.ErrInvalidStateTransition, adj.Status, adj.Number)
		}

		ledgerTx := tx.Ledger()
		for _, item := range adj.Items {
			quantity := item.AdjustmentQuantity()
			if quantity.IsZero() {
				continue
			}
			unitCost := item.UnitCost
			_, err := s.ledger.RecordIn(ctx, ledgerTx, inventory.RecordInput{
				ProductID:   item.ProductID,
				LocationID:  adj.LocationID,
				Kind:        movementKindFor(adj.Reason, quantity.Sign()),
				Quantity:    quantity,
				UnitCost:    &unitCost,
				Reference:   &inventory.Reference{Kind: inventory.ReferenceAdjustment, ID: adj.ID.String()},
				BatchNumber: item.BatchNumber,
				ExpiryDate:  item.ExpiryDate,
				ActorID:     approverID,
				Reason:      string(adj.Reason),
				Notes:       item.Note,
			})
			if err != nil {
				return fmt.Errorf("apply line for product %d: %w", item.ProductID, err)
			}
		}

		now := s.clock()
		adj.Status = StatusApproved
		adj.DecidedBy = &approverID
		adj.DecidedAt = &now
		adj.DecisionNote = note
		return tx.SetStatus(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, ApprovalModule, adj.ID, approverID, "approved from draft")
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: adj.ID, ActorID: approverID, Action: shared.ApprovalApprove, Note: note})
	}
	s.metrics.CountAdjustmentDecision("approve")
	s.recordAudit(ctx, approverID, "adjustment:approve", adj)
	return adj, nil
}

// Reject closes the adjustment without touching stock.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, note string) (Adjustment, error) {
	if actorID == 0 {
		return Adjustment{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adj.Status.Terminal() {
			return fmt.Errorf("%w: cannot reject %s adjustment %s", shared.ErrInvalidStateTransition, adj.Status, adj.Number)
		}
		now := s.clock()
		adj.Status = StatusRejected
		adj.DecidedBy = &actorID
		adj.DecidedAt = &now
		adj.DecisionNote = note
		return tx.SetStatus(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, ApprovalModule, adj.ID, actorID, "rejected from draft")
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: adj.ID, ActorID: actorID, Action: shared.ApprovalReject, Note: note})
	}
	s.metrics.CountAdjustmentDecision("reject")
	s.recordAudit(ctx, actorID, "adjustment:reject", adj)
	return adj, nil
}

// movementKindFor maps a reason and correction sign onto the movement
// kind posted to the ledger. Increases are always plain adjustments;
// decreases keep the loss classification from the reason code.
func movementKindFor(reason Reason, sign int) inventory.MovementKind {
	if sign > 0 {
		return inventory.MovementAdjustment
	}
	switch reason {
	case ReasonDamagedGoods:
		return inventory.MovementDamage
	case ReasonExpiredGoods:
		return inventory.MovementExpired
	case ReasonTheft:
		return inventory.MovementTheft
	default:
		return inventory.MovementAdjustment
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, adj Adjustment) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_adjustment",
		EntityID: adj.ID.String(),
		Meta: map[string]any{
			"number":             adj.Number,
			"location_id":        adj.LocationID,
			"status":             string(adj.Status),
			"total_value_change": adj.TotalValueChange().String(),
		},
	})
}

func validateCreate(input CreateInput) error {
	if input.LocationID == 0 {
		return fmt.Errorf("%w: location required", shared.ErrValidation)
	}
	if input.CreatedBy == 0 {
		return fmt.Errorf("%w: creator required", shared.ErrValidation)
	}
	if !input.Reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", shared.ErrValidation, input.Reason)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == 0 {
			return fmt.Errorf("%w: product required on every item", shared.ErrValidation)
		}
		if item.ActualQuantity.Sign() < 0 {
			return fmt.Errorf("%w: actual quantity must not be negative", shared.ErrValidation)
		}
		if item.UnitCost.Sign() < 0 {
			return fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
		}
	}
	return nil
}
