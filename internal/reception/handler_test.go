package reception_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/smart-economato/economato/internal/auth"
	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/reception"
	"github.com/smart-economato/economato/internal/shared"
)

type httpFixture struct {
	router  http.Handler
	cookies []*http.Cookie
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	srv := seed(t)
	client := backend.NewClient(srv.URL, 0)
	svc := reception.NewService(reception.NewEngine(client, catalog.NewLoader(client)), reception.NewRedisStore(redisClient, time.Hour), nil, reception.Options{})

	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	authService := auth.NewService(client)

	r := chi.NewRouter()
	r.Use(sessions.Middleware(nil))
	r.Post("/test/login", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		require.NoError(t, authService.SaveSession(sess, auth.User{ID: "1", Username: "chef.ana", Nombre: "Ana", Rol: "admin"}))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/reception", reception.NewHandler(nil, svc).MountRoutes)

	f := &httpFixture{router: r}
	login := f.do(t, http.MethodPost, "/test/login", "")
	f.cookies = login.Result().Cookies()
	require.NotEmpty(t, f.cookies)
	return f
}

func (f *httpFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

type envelope struct {
	Data         json.RawMessage `json:"data"`
	Notification string          `json:"notification"`
}

func decode(t *testing.T, res *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	return env
}

func TestReceptionRoutesRequireLogin(t *testing.T) {
	f := newHTTPFixture(t)
	f.cookies = nil

	res := f.do(t, http.MethodPost, "/reception/open", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestReceptionNotOpenIsConflict(t *testing.T) {
	f := newHTTPFixture(t)

	res := f.do(t, http.MethodGet, "/reception/", "")
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestReceptionHTTPFlow(t *testing.T) {
	f := newHTTPFixture(t)

	res := f.do(t, http.MethodPost, "/reception/open", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodPost, "/reception/items", `{"nombreProducto":"","proveedorId":"2","categoriaId":"1","cantidad":1,"precio":1}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Por favor completa todos los campos obligatorios")

	res = f.do(t, http.MethodPost, "/reception/items", `{"nombreProducto":"leche","proveedorId":"2","categoriaId":"1","cantidad":4,"precio":0.95}`)
	require.Equal(t, http.StatusCreated, res.Code)
	require.Equal(t, "Item agregado correctamente", decode(t, res).Notification)

	res = f.do(t, http.MethodPost, "/reception/items", `{"nombreProducto":"Queso","proveedorId":"2","categoriaId":"1","cantidad":5,"precio":"3.50"}`)
	require.Equal(t, http.StatusAccepted, res.Code)
	var proposed reception.AddResult
	require.NoError(t, json.Unmarshal(decode(t, res).Data, &proposed))
	require.NotNil(t, proposed.Confirmation)

	res = f.do(t, http.MethodPost, "/reception/confirmations/"+proposed.Confirmation.ID, `{"accepted":true}`)
	require.Equal(t, http.StatusCreated, res.Code)

	res = f.do(t, http.MethodGet, "/reception/commit", "")
	require.Equal(t, http.StatusOK, res.Code)
	var sum reception.CommitSummary
	require.NoError(t, json.Unmarshal(decode(t, res).Data, &sum))
	require.Equal(t, 9, sum.Units)

	res = f.do(t, http.MethodPost, "/reception/commit", `{"confirmed":false}`)
	require.Equal(t, http.StatusConflict, res.Code)

	res = f.do(t, http.MethodPost, "/reception/commit", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "Recepción guardada: 2 producto(s) (1 nuevos), 9 unidades", decode(t, res).Notification)

	res = f.do(t, http.MethodPost, "/reception/commit", `{"confirmed":true}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "No hay items para guardar")
}

func TestReceptionRemoveItemBadIndex(t *testing.T) {
	f := newHTTPFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/reception/open", "").Code)

	res := f.do(t, http.MethodDelete, "/reception/items/abc", "")
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodDelete, "/reception/items/3", "")
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
}
