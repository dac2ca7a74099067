package credit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/httpx"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

// Handler wires JSON endpoints for the credit ledger.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	validate *validator.Validate
}

// NewHandler constructs the credit handler.
func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger, validate: validator.New()}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.handlePost)
	r.Get("/customers/{id}/balance", h.handleBalance)
	r.Get("/customers/{id}/transactions", h.handleList)
}

type postRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required"`
	Type       string          `json:"type" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	UserID     int64           `json:"user_id" validate:"required"`
	Notes      string          `json:"notes,omitempty"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	txn, err := h.ledger.Post(r.Context(), PostInput{
		CustomerID: req.CustomerID,
		Type:       TransactionType(req.Type),
		Amount:     req.Amount,
		ActorID:    req.UserID,
		Notes:      req.Notes,
	})
	if err != nil {
		h.logger.Error("post credit transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathCustomerID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathCustomerID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	transactions, pagination, err := h.ledger.ListTransactions(r.Context(), customerID, page, perPage)
	if err != nil {
		h.logger.Error("list credit transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": transactions, "pagination": pagination})
}

func pathCustomerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid customer id", shared.ErrValidation)
	}
	return id, nil
}
