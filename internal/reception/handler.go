package reception

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smart-economato/economato/internal/auth"
	"github.com/smart-economato/economato/internal/platform/httpx"
	"github.com/smart-economato/economato/internal/shared"
)

// IdempotencyHeader optionally carries a client key for POST /commit.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the reception workflow over JSON.
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

// MountRoutes registers reception routes. Every route requires a logged-in user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(auth.RequireUser)
	r.Post("/open", h.handleOpen)
	r.Get("/", h.handleState)
	r.Get("/suggest", h.handleSuggest)
	r.Post("/select", h.handleSelect)
	r.Delete("/select", h.handleClearSelection)
	r.Post("/items", h.handleAddItem)
	r.Delete("/items/{index}", h.handleRemoveItem)
	r.Post("/confirmations/{id}", h.handleResolve)
	r.Get("/commit", h.handlePrepareCommit)
	r.Post("/commit", h.handleCommit)
}

func sessionKey(r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.ID == "" {
		return "", false
	}
	return sess.ID, true
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(r)
	if !ok {
		h.respondError(w, shared.ErrSessionMissing)
		return
	}
	st, err := h.service.Open(r.Context(), key)
	if err != nil {
		h.logger.Error("open reception", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "Error al cargar el módulo de recepción")
		return
	}
	httpx.OK(w, st, "")
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	key, _ := sessionKey(r)
	st, err := h.service.State(r.Context(), key)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, st, "")
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	key, _ := sessionKey(r)
	products, err := h.service.Suggest(r.Context(), key, r.URL.Query().Get("q"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, products, "")
}

type selectRequest struct {
	ProductoID string `json:"productoId"`
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	key, _ := sessionKey(r)
	p, err := h.service.Select(r.Context(), key, req.ProductoID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, p, "")
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	key, _ := sessionKey(r)
	if err := h.service.ClearSelection(r.Context(), key); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req LineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	key, _ := sessionKey(r)
	res, err := h.service.AddItem(r.Context(), key, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if res.Confirmation != nil {
		httpx.JSON(w, http.StatusAccepted, httpx.Envelope{Data: res})
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: res, Notification: res.Notification})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Índice no válido")
		return
	}
	key, _ := sessionKey(r)
	st, msg, err := h.service.RemoveItem(r.Context(), key, index)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, st, msg)
}

type resolveRequest struct {
	Accepted bool `json:"accepted"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	key, _ := sessionKey(r)
	res, err := h.service.ResolveConfirmation(r.Context(), key, chi.URLParam(r, "id"), req.Accepted)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if res.Item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Data: res, Notification: res.Notification})
}

func (h *Handler) handlePrepareCommit(w http.ResponseWriter, r *http.Request) {
	key, _ := sessionKey(r)
	sum, err := h.service.PrepareCommit(r.Context(), key)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, sum, "")
}

type commitRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	key, _ := sessionKey(r)
	user, _ := auth.UserFromContext(r.Context())
	res, err := h.service.Commit(r.Context(), key, CommitRequest{
		Confirmed:      req.Confirmed,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		Actor:          user.Username,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, res, res.Message)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		verr *ValidationError
		lerr *LookupError
	)
	switch {
	case errors.As(err, &verr):
		httpx.ValidationProblem(w, verr.Message, verr.Fields)
	case errors.As(err, &lerr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", lerr.Message)
	case errors.Is(err, ErrNotOpen):
		httpx.Problem(w, http.StatusConflict, "Conflict", "La recepción no está abierta")
	case errors.Is(err, ErrNothingToCommit):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "No hay items para guardar")
	case errors.Is(err, ErrNotConfirmed):
		httpx.Problem(w, http.StatusConflict, "Conflict", "Guardado no confirmado")
	case errors.Is(err, ErrDuplicateCommit):
		httpx.Problem(w, http.StatusConflict, "Conflict", "La recepción ya fue procesada")
	case errors.Is(err, ErrBatchFailed):
		h.logger.Error("commit reception", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "Error al guardar la recepción")
	case errors.Is(err, shared.ErrSessionMissing):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Debes iniciar sesión")
	default:
		h.logger.Error("reception request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
