package adjustment

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/httpx"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Handler wires JSON endpoints for the adjustment workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the adjustment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/submit", h.handleSubmit)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

type createRequest struct {
	LocationID  int64       `json:"location_id" validate:"required"`
	Reason      string      `json:"reason" validate:"required"`
	Description string      `json:"description,omitempty"`
	UserID      int64       `json:"user_id" validate:"required"`
	Items       []itemInput `json:"items" validate:"required,min=1,dive"`
}

type itemInput struct {
	ProductID      int64           `json:"product_id" validate:"required"`
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	Note           string          `json:"note,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		LocationID:  req.LocationID,
		Reason:      Reason(req.Reason),
		Description: req.Description,
		CreatedBy:   req.UserID,
		Items:       make([]ItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{
			ProductID:      item.ProductID,
			SystemQuantity: item.SystemQuantity,
			ActualQuantity: item.ActualQuantity,
			UnitCost:       item.UnitCost,
			BatchNumber:    item.BatchNumber,
			ExpiryDate:     item.ExpiryDate,
			Note:           item.Note,
		})
	}
	adj, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	adjustments, pagination, err := h.service.List(r.Context(), Filter{
		LocationID: locationID,
		Status:     Status(q.Get("status")),
		Reason:     Reason(q.Get("reason")),
		Search:     q.Get("search"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": adjustments, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

type decisionRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Note   string `json:"note,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id uuid.UUID, req decisionRequest) (Adjustment, error) {
		return h.service.SubmitForApproval(r.Context(), id, req.UserID)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id uuid.UUID, req decisionRequest) (Adjustment, error) {
		return h.service.Approve(r.Context(), id, req.UserID, req.Note)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(id uuid.UUID, req decisionRequest) (Adjustment, error) {
		return h.service.Reject(r.Context(), id, req.UserID, req.Note)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID, decisionRequest) (Adjustment, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req decisionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := fn(id, req)
	if err != nil {
		h.logger.Error("adjustment decision", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
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

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid adjustment id", shared.ErrValidation)
	}
	return id, nil
}
