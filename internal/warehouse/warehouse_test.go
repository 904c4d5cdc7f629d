package warehouse_test

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/smart-economato/economato/internal/backend/backendtest"
	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/shared"
	"github.com/smart-economato/economato/internal/warehouse"
	_ "github.com/smart-economato/economato/testing"
)

func seed(t *testing.T) *backendtest.Server {
	t.Helper()
	srv := backendtest.New(t)
	srv.AddCategory(backend.Category{ID: "1", Nombre: "Lácteos"})
	srv.AddCategory(backend.Category{ID: "2", Nombre: "Frutas"})
	srv.AddSupplier(backend.Supplier{ID: "1", Nombre: "Granja Sol"})
	srv.AddSupplier(backend.Supplier{ID: "2", Nombre: "Huerta Norte"})
	srv.AddProduct(map[string]any{"id": "1", "nombre": "Leche", "precio": 1.0, "stock": 4, "stockMinimo": 5, "categoriaId": "1", "proveedorId": "1"})
	srv.AddProduct(map[string]any{"id": "2", "nombre": "Manzana", "precio": 2.5, "stock": 10, "stockMinimo": 10, "categoriaId": "2", "proveedorId": "2"})
	srv.AddProduct(map[string]any{"id": "5", "nombre": "Pera", "precio": 1.0, "stock": 1, "stockMinimo": 3, "categoriaId": "2", "proveedorId": "2"})
	return srv
}

func newService(srv *backendtest.Server) *warehouse.Service {
	client := backend.NewClient(srv.URL, 0)
	return warehouse.NewService(catalog.NewLoader(client), client)
}

func names(products []catalog.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Nombre)
	}
	return out
}

func TestListAppliesFilters(t *testing.T) {
	svc := newService(seed(t))
	ctx := context.Background()

	all, err := svc.List(ctx, warehouse.Query{})
	require.NoError(t, err)
	require.Len(t, all.Products, 3)
	require.Equal(t, "Productos mostrados: 3 | Valor total del stock: 30.00 €", all.Message)
	for _, p := range all.Products {
		require.Nil(t, p.Raw)
	}

	bySupplier, err := svc.List(ctx, warehouse.Query{Search: "huerta"})
	require.NoError(t, err)
	require.Equal(t, []string{"Manzana", "Pera"}, names(bySupplier.Products))

	fruits, err := svc.List(ctx, warehouse.Query{Category: "Frutas", Order: catalog.OrderDesc})
	require.NoError(t, err)
	require.Equal(t, []string{"Manzana", "Pera"}, names(fruits.Products))

	alerts, err := svc.List(ctx, warehouse.Query{Alerts: true, Order: catalog.OrderAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"Leche", "Pera"}, names(alerts.Products))

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
}

func intPtr(v int) *int { return &v }

func validForm() warehouse.ProductForm {
	return warehouse.ProductForm{
		Nombre:      "Aceite de oliva",
		Precio:      json.Number("4.95"),
		Stock:       intPtr(12),
		StockMinimo: intPtr(3),
		CategoriaID: "1",
		ProveedorID: "2",
	}
}

func TestCreateProductAllocatesNextID(t *testing.T) {
	srv := seed(t)
	svc := newService(srv)

	p, err := svc.CreateProduct(context.Background(), validForm())
	require.NoError(t, err)
	require.Equal(t, "6", p.ID)
	require.Equal(t, "Lácteos", p.Categoria)
	require.Equal(t, "Huerta Norte", p.Proveedor)

	stored, ok := srv.Product("6")
	require.True(t, ok)
	require.EqualValues(t, 4.95, stored["precio"])
	require.EqualValues(t, 4.95, stored["precioUnitario"])
	require.EqualValues(t, 12, stored["stock"])
	require.EqualValues(t, 3, stored["stockMinimo"])
	require.Equal(t, "unidad", stored["unidadMedida"])
	require.Equal(t, true, stored["activo"])
}

func TestCreateProductValidation(t *testing.T) {
	srv := seed(t)
	svc := newService(srv)

	cases := []struct {
		name    string
		mutate  func(*warehouse.ProductForm)
		message string
	}{
		{"empty name", func(f *warehouse.ProductForm) { f.Nombre = " " }, "El nombre del producto es obligatorio"},
		{"short name", func(f *warehouse.ProductForm) { f.Nombre = "Ac" }, "El nombre debe tener 3-50 caracteres (letras, números, guiones y puntos)"},
		{"bad chars", func(f *warehouse.ProductForm) { f.Nombre = "Aceite<script>" }, "El nombre debe tener 3-50 caracteres (letras, números, guiones y puntos)"},
		{"zero price", func(f *warehouse.ProductForm) { f.Precio = "0" }, "El precio debe ser mayor a 0"},
		{"three decimals", func(f *warehouse.ProductForm) { f.Precio = "1.234" }, "El precio debe tener máximo 2 decimales"},
		{"missing price", func(f *warehouse.ProductForm) { f.Precio = "" }, "El precio es obligatorio y debe ser un número"},
		{"missing stock", func(f *warehouse.ProductForm) { f.Stock = nil }, "El stock es obligatorio y debe ser un número"},
		{"negative minimum", func(f *warehouse.ProductForm) { f.StockMinimo = intPtr(-1) }, "El stock no puede ser negativo"},
		{"no category", func(f *warehouse.ProductForm) { f.CategoriaID = "" }, "Debe seleccionar una categoría"},
		{"no supplier", func(f *warehouse.ProductForm) { f.ProveedorID = "" }, "Debe seleccionar un proveedor"},
		{"unknown category", func(f *warehouse.ProductForm) { f.CategoriaID = "99" }, "Categoría no válida"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(&form)
			_, err := svc.CreateProduct(context.Background(), form)
			require.ErrorIs(t, err, warehouse.ErrInvalidProduct)
			var ferr *warehouse.FormError
			require.True(t, errors.As(err, &ferr))
			require.Equal(t, tc.message, ferr.Message)
		})
	}
	require.Empty(t, srv.Mutations())
}

func TestCreateProductUpstreamFailure(t *testing.T) {
	srv := seed(t)
	srv.FailPost(http.StatusInternalServerError)
	svc := newService(srv)

	_, err := svc.CreateProduct(context.Background(), validForm())
	require.ErrorIs(t, err, backend.ErrStatus)
}

func newRouter(t *testing.T, srv *backendtest.Server) (http.Handler, []*http.Cookie) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	authService := auth.NewService(backend.NewClient(srv.URL, 0))

	r := chi.NewRouter()
	r.Use(sessions.Middleware(nil))
	r.Post("/test/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, authService.SaveSession(shared.SessionFromContext(r.Context()), auth.User{ID: "1", Username: "almacen"}))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/almacen", warehouse.NewHandler(nil, newService(srv)).MountRoutes)

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/test/login", nil))
	return r, res.Result().Cookies()
}

func serve(r http.Handler, cookies []*http.Cookie, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestHandlerListAndCreate(t *testing.T) {
	srv := seed(t)
	r, cookies := newRouter(t, srv)

	res := serve(r, nil, http.MethodGet, "/almacen/productos", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = serve(r, cookies, http.MethodGet, "/almacen/productos?orden=sideways", "")
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(r, cookies, http.MethodGet, "/almacen/productos?alerta=1&orden=desc", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Productos mostrados: 2")

	res = serve(r, cookies, http.MethodGet, "/almacen/categorias", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Frutas")

	res = serve(r, cookies, http.MethodPost, "/almacen/productos", `{"nombre":"Arroz","precio":"1.5","stock":3,"stockMinimo":1,"categoriaId":"2","proveedorId":"1"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	require.Contains(t, res.Body.String(), "Producto agregado exitosamente")

	res = serve(r, cookies, http.MethodPost, "/almacen/productos", `{"nombre":"Arroz","precio":0,"stock":3,"stockMinimo":1,"categoriaId":"2","proveedorId":"1"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "El precio debe ser mayor a 0")
}

func TestHandlerUpstreamDown(t *testing.T) {
	srv := seed(t)
	r, cookies := newRouter(t, srv)
	srv.FailGet("productos", http.StatusServiceUnavailable)

	res := serve(r, cookies, http.MethodGet, "/almacen/productos", "")
	require.Equal(t, http.StatusBadGateway, res.Code)
	require.Contains(t, res.Body.String(), "Error al conectar con el servidor")
}
