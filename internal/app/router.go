package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/adjustment"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/credit"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/inventory"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/observability"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/httpx"
	"github.com/rodniegwapo/techiko-pos-sub001/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	InventoryHandler  *inventory.Handler
	AdjustmentHandler *adjustment.Handler
	CreditHandler     *credit.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Error("health check", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Unhealthy", "database unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/adjustments", params.AdjustmentHandler.MountRoutes)
	r.Route("/credit", params.CreditHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
