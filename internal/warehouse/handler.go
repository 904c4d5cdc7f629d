package warehouse

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smart-economato/economato/internal/auth"
	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/platform/httpx"
)

// Handler wires the warehouse endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(auth.RequireUser)
	r.Get("/productos", h.handleList)
	r.Post("/productos", h.handleCreate)
	r.Get("/categorias", h.handleCategories)
	r.Get("/proveedores", h.handleSuppliers)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := Query{
		Search:   params.Get("q"),
		Category: params.Get("categoria"),
		Alerts:   params.Get("alerta") == "1" || params.Get("alerta") == "true",
	}
	switch order := catalog.Order(params.Get("orden")); order {
	case "", catalog.OrderAsc, catalog.OrderDesc:
		q.Order = order
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Orden no válido")
		return
	}

	listing, err := h.service.List(r.Context(), q)
	if err != nil {
		h.upstreamError(w, "list products", err)
		return
	}
	notification := ""
	if q.Alerts && len(listing.Products) == 0 {
		notification = "No hay productos con stock bajo"
	}
	httpx.OK(w, listing, notification)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.upstreamError(w, "list categories", err)
		return
	}
	httpx.OK(w, categories, "")
}

func (h *Handler) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.Suppliers(r.Context())
	if err != nil {
		h.upstreamError(w, "list suppliers", err)
		return
	}
	httpx.OK(w, suppliers, "")
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	product, err := h.service.CreateProduct(r.Context(), form)
	if err != nil {
		var ferr *FormError
		if errors.As(err, &ferr) {
			httpx.ValidationProblem(w, ferr.Message, ferr.Fields)
			return
		}
		h.logger.Error("create product", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "Error al agregar el producto")
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: product, Notification: "Producto agregado exitosamente"})
}

func (h *Handler) upstreamError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, errors.Join(httpx.ErrUpstream, err))
}
