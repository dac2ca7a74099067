package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	MovementSale        MovementKind = "sale"
	MovementPurchase    MovementKind = "purchase"
	MovementAdjustment  MovementKind = "adjustment"
	MovementTransferIn  MovementKind = "transfer_in"
	MovementTransferOut MovementKind = "transfer_out"
	MovementReturn      MovementKind = "return"
	MovementDamage      MovementKind = "damage"
	MovementTheft       MovementKind = "theft"
	MovementExpired     MovementKind = "expired"
	MovementPromotion   MovementKind = "promotion"
)

// Valid reports whether the kind is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementSale, MovementPurchase, MovementAdjustment, MovementTransferIn,
		MovementTransferOut, MovementReturn, MovementDamage, MovementTheft,
		MovementExpired, MovementPromotion:
		return true
	}
	return false
}

// ReferenceKind tags the entity that caused a movement.
type ReferenceKind string

const (
	ReferenceSale       ReferenceKind = "sale"
	ReferencePurchase   ReferenceKind = "purchase"
	ReferenceAdjustment ReferenceKind = "adjustment"
	ReferenceTransfer   ReferenceKind = "transfer"
)

// Reference points at the causing entity of a movement. The linked
// record is resolved by the caller that needs it; the ledger only
// stores the tag and id.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

// StockMovement is one immutable, signed quantity change against a
// product at a location. Rows are created once and never mutated; the
// append-only log is the canonical stock history.
type StockMovement struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	LocationID     int64           `json:"location_id"`
	Kind           MovementKind    `json:"movement_type"`
	Quantity       decimal.Decimal `json:"quantity_change"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Reference      *Reference      `json:"reference,omitempty"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	ActorID        int64           `json:"user_id"`
	Reason         string          `json:"reason,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Position is the current aggregate stock state for a product at a
// location. Created lazily on first movement; on_hand is mutated only
// by the ledger, reserved only by Reserve/Release. Version guards
// against lost updates.
type Position struct {
	ProductID      int64           `json:"product_id"`
	LocationID     int64           `json:"location_id"`
	OnHand         decimal.Decimal `json:"quantity_on_hand"`
	Reserved       decimal.Decimal `json:"quantity_reserved"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	LastUnitCost   decimal.Decimal `json:"last_unit_cost"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	LastRestockAt  *time.Time      `json:"last_restock_at,omitempty"`
	LastSaleAt     *time.Time      `json:"last_sale_at,omitempty"`
	Version        int64           `json:"-"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Available is on-hand minus reserved. It may be negative while a
// backorder or oversell is outstanding.
func (p Position) Available() decimal.Decimal {
	return p.OnHand.Sub(p.Reserved)
}

// TotalValue is always derived, never stored independently.
func (p Position) TotalValue() decimal.Decimal {
	return p.OnHand.Mul(p.AverageCost)
}

// RecordInput carries one movement request into the ledger.
type RecordInput struct {
	ProductID      int64
	LocationID     int64
	Kind           MovementKind
	Quantity       decimal.Decimal
	UnitCost       *decimal.Decimal
	Reference      *Reference
	BatchNumber    string
	ExpiryDate     *time.Time
	ActorID        int64
	Reason         string
	Notes          string
	IdempotencyKey string
}

// TransferInput moves stock between two locations as a transfer_out
// plus transfer_in pair recorded in a single transaction.
type TransferInput struct {
	ProductID      int64
	SourceLocation int64
	DestLocation   int64
	Quantity       decimal.Decimal
	UnitCost       *decimal.Decimal
	Reference      *Reference
	ActorID        int64
	Notes          string
}

// AvailabilityLine is one requested (product, quantity) pair.
type AvailabilityLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Shortfall annotates a requested line whose available quantity does
// not cover the request.
type Shortfall struct {
	ProductID         int64           `json:"product_id"`
	ProductName       string          `json:"product_name"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
}

// MovementFilter narrows movement history listings.
type MovementFilter struct {
	ProductID  int64
	LocationID int64
	Kind       MovementKind
	From       time.Time
	To         time.Time
	Search     string
	Page       int
	PerPage    int
}
