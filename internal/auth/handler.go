package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smart-economato/economato/internal/platform/httpx"
	"github.com/smart-economato/economato/internal/shared"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,20}$`)
	passwordPattern = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*()_+\-=\[\]{};':",./<>?]{6,30}$`)
)

var fieldMessages = map[string]map[string]string{
	"username": {
		"required": "El usuario es obligatorio",
		"username": "El usuario debe tener 3-20 caracteres (letras, números, puntos, guiones y guiones bajos)",
	},
	"password": {
		"required": "La contraseña es obligatoria",
		"password": "La contraseña debe tener 6-30 caracteres (letras, números y caracteres especiales)",
	},
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordPattern.MatchString(fl.Field().String())
	})
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      v,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(RequireUser).Get("/me", h.handleMe)
}

type loginForm struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,password"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.OK(w, map[string]string{"token": token}, "")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "JSON inválido")
		return
	}
	form.Username = strings.TrimSpace(form.Username)

	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			name := strings.ToLower(fe.Field())
			fields[name] = fieldMessages[name][fe.Tag()]
		}
		first := verrs[0]
		httpx.ValidationProblem(w, fieldMessages[strings.ToLower(first.Field())][first.Tag()], fields)
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Usuario o contraseña incorrectos")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "Error al iniciar sesión")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if err := h.service.SaveSession(sess, user); err != nil {
		h.logger.Error("save login session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.logger.Info("login", slog.String("username", user.Username))
	httpx.OK(w, user, "¡Bienvenido!")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	httpx.OK(w, user, "")
}

// RequireUser rejects requests whose session has no logged-in user and stores
// the user in the request context otherwise.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blob, err := CurrentSession(shared.SessionFromContext(r.Context()))
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Debes iniciar sesión")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), blob.User)))
	})
}
