// Package adjustment implements the stock adjustment approval workflow.
// An adjustment is a correction batch drafted from a count, submitted
// for approval, and only applied to stock when approved.
package adjustment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the workflow state of an adjustment.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// Valid reports whether the status is one of the workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Reason classifies why the correction is being made. It also selects
// the movement kind posted for decreasing lines on approval.
type Reason string

const (
	ReasonStockCount   Reason = "stock_count"
	ReasonDamagedGoods Reason = "damaged_goods"
	ReasonExpiredGoods Reason = "expired_goods"
	ReasonTheft        Reason = "theft"
	ReasonFound        Reason = "found"
	ReasonOther        Reason = "other"
)

// Valid reports whether the reason is a known reason code.
func (r Reason) Valid() bool {
	switch r {
	case ReasonStockCount, ReasonDamagedGoods, ReasonExpiredGoods, ReasonTheft, ReasonFound, ReasonOther:
		return true
	}
	return false
}

// Item is one counted line of an adjustment. AdjustmentQuantity and
// CostChange are always derived from the stored fields, never supplied.
type Item struct {
	ID             int64           `json:"id"`
	AdjustmentID   uuid.UUID       `json:"adjustment_id"`
	ProductID      int64           `json:"product_id"`
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	Note           string          `json:"note,omitempty"`
}

// AdjustmentQuantity is the signed correction: counted minus expected.
func (i Item) AdjustmentQuantity() decimal.Decimal {
	return i.ActualQuantity.Sub(i.SystemQuantity)
}

// CostChange values the correction at the line's unit cost.
func (i Item) CostChange() decimal.Decimal {
	return i.AdjustmentQuantity().Mul(i.UnitCost)
}

// Adjustment is the workflow header plus its lines.
type Adjustment struct {
	ID           uuid.UUID  `json:"id"`
	Number       string     `json:"number"`
	LocationID   int64      `json:"location_id"`
	Reason       Reason     `json:"reason"`
	Status       Status     `json:"status"`
	Description  string     `json:"description,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	SubmittedBy  *int64     `json:"submitted_by,omitempty"`
	DecidedBy    *int64     `json:"decided_by,omitempty"`
	DecisionNote string     `json:"decision_note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	Items        []Item     `json:"items"`
}

// TotalValueChange sums the cost change over all lines.
func (a Adjustment) TotalValueChange() decimal.Decimal {
	total := decimal.Zero
	for _, item := range a.Items {
		total = total.Add(item.CostChange())
	}
	return total
}

// ItemInput is one counted line on a create request.
type ItemInput struct {
	ProductID      int64           `json:"product_id" validate:"required"`
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	Note           string          `json:"note,omitempty"`
}

// CreateInput drafts a new adjustment.
type CreateInput struct {
	LocationID  int64
	Reason      Reason
	Description string
	CreatedBy   int64
	Items       []ItemInput
}

// Filter narrows adjustment listings.
type Filter struct {
	LocationID int64
	Status     Status
	Reason     Reason
	Search     string
	Page       int
	PerPage    int
}
