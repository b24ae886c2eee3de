package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/timberline-erp/timberline/internal/drying"
	"github.com/timberline-erp/timberline/internal/masterdata/warehouses"
	"github.com/timberline-erp/timberline/internal/masterdata/woodtypes"
	"github.com/timberline-erp/timberline/internal/observability"
	"github.com/timberline-erp/timberline/internal/stock"
	"github.com/timberline-erp/timberline/internal/transfer"
	"github.com/timberline-erp/timberline/jobs"
)

// RouterParams aggregates everything the router mounts.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Metrics           *observability.Metrics
	WarehousesHandler *warehouses.Handler
	WoodTypesHandler  *woodtypes.Handler
	StockHandler      *stock.Handler
	TransferHandler   *transfer.Handler
	DryingHandler     *drying.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter builds the HTTP router. Health and metrics sit outside the API key
// gate; everything under /api requires it.
func NewRouter(params RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(APIKeyMiddleware(params.Config))

		if params.WarehousesHandler != nil {
			api.Route("/warehouses", func(r chi.Router) {
				params.WarehousesHandler.MountRoutes(r)
				if params.StockHandler != nil {
					r.Get("/{id}/stock", params.StockHandler.WarehouseStock)
				}
			})
		}
		if params.StockHandler != nil {
			api.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.WoodTypesHandler != nil {
			api.Route("/wood-types", params.WoodTypesHandler.MountRoutes)
		}
		if params.TransferHandler != nil {
			api.Route("/transfers", params.TransferHandler.MountRoutes)
		}
		if params.DryingHandler != nil {
			api.Route("/factory/drying-processes", params.DryingHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
