package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/httpx"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Handler wires JSON endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	checker  *Checker
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, ledger *Ledger, checker *Checker) *Handler {
	return &Handler{logger: logger, ledger: ledger, checker: checker, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleRecordMovement)
	r.Get("/movements", h.handleListMovements)
	r.Get("/positions", h.handleGetPosition)
	r.Post("/reservations", h.handleReserve)
	r.Post("/releases", h.handleRelease)
	r.Post("/availability-check", h.handleAvailability)
	r.Post("/transfers", h.handleTransfer)
}

type movementRequest struct {
	ProductID      int64            `json:"product_id" validate:"required"`
	LocationID     int64            `json:"location_id" validate:"required"`
	MovementType   string           `json:"movement_type" validate:"required"`
	QuantityChange decimal.Decimal  `json:"quantity_change"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	ReferenceType  string           `json:"reference_type,omitempty"`
	ReferenceID    string           `json:"reference_id,omitempty"`
	BatchNumber    string           `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time       `json:"expiry_date,omitempty"`
	UserID         int64            `json:"user_id" validate:"required"`
	Reason         string           `json:"reason,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

func (h *Handler) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RecordInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		Kind:           MovementKind(req.MovementType),
		Quantity:       req.QuantityChange,
		UnitCost:       req.UnitCost,
		BatchNumber:    req.BatchNumber,
		ExpiryDate:     req.ExpiryDate,
		ActorID:        req.UserID,
		Reason:         req.Reason,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.ReferenceType != "" {
		input.Reference = &Reference{Kind: ReferenceKind(req.ReferenceType), ID: req.ReferenceID}
	}
	movement, err := h.ledger.Record(r.Context(), input)
	if err != nil {
		h.logger.Error("record movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		ProductID:  queryInt64(q.Get("product_id")),
		LocationID: queryInt64(q.Get("location_id")),
		Kind:       MovementKind(q.Get("movement_type")),
		Search:     q.Get("search"),
		Page:       int(queryInt64(q.Get("page"))),
		PerPage:    int(queryInt64(q.Get("per_page"))),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid from date", shared.ErrValidation))
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid to date", shared.ErrValidation))
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	movements, page, err := h.ledger.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements, "pagination": page})
}

func (h *Handler) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	productID := queryInt64(r.URL.Query().Get("product_id"))
	locationID := queryInt64(r.URL.Query().Get("location_id"))
	pos, err := h.ledger.GetPosition(r.Context(), productID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"position":           pos,
		"available_quantity": pos.Available(),
		"total_value":        pos.TotalValue(),
	})
}

type reservationRequest struct {
	ProductID  int64           `json:"product_id" validate:"required"`
	LocationID int64           `json:"location_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.ledger.Reserve(r.Context(), req.ProductID, req.LocationID, req.Quantity); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "reserved"})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.ledger.Release(r.Context(), req.ProductID, req.LocationID, req.Quantity); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type availabilityRequest struct {
	LocationID int64              `json:"location_id" validate:"required"`
	Items      []AvailabilityLine `json:"items" validate:"required,min=1"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shortfalls, err := h.checker.Check(r.Context(), req.LocationID, req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"available":  len(shortfalls) == 0,
		"shortfalls": shortfalls,
	})
}

type transferRequest struct {
	ProductID      int64            `json:"product_id" validate:"required"`
	SourceLocation int64            `json:"source_location_id" validate:"required"`
	DestLocation   int64            `json:"destination_location_id" validate:"required"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	UserID         int64            `json:"user_id" validate:"required"`
	Notes          string           `json:"notes,omitempty"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, in, err := h.ledger.Transfer(r.Context(), TransferInput{
		ProductID:      req.ProductID,
		SourceLocation: req.SourceLocation,
		DestLocation:   req.DestLocation,
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		ActorID:        req.UserID,
		Notes:          req.Notes,
	})
	if err != nil {
		h.logger.Error("transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transfer_out": out, "transfer_in": in})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func queryInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
