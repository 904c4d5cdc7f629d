package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smart-economato/economato/internal/auth"
	"github.com/smart-economato/economato/internal/observability"
	"github.com/smart-economato/economato/internal/platform/httpx"
	"github.com/smart-economato/economato/internal/reception"
	"github.com/smart-economato/economato/internal/shared"
	"github.com/smart-economato/economato/internal/warehouse"
	"github.com/smart-economato/economato/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	ReceptionHandler *reception.Handler
	WarehouseHandler *warehouse.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Economato defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	// Health and metrics endpoints stay outside sessions and rate limiting.
	r.Group(func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if params.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Route("/auth", params.AuthHandler.MountRoutes)
		if params.ReceptionHandler != nil {
			r.Route("/reception", params.ReceptionHandler.MountRoutes)
		}
		if params.WarehouseHandler != nil {
			r.Route("/almacen", params.WarehouseHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Recurso no encontrado")
	})

	return r
}
