// Package warehouse serves the stock listing and the new-product form.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/catalog"
)

const newProductUnit = "unidad"

var (
	productNamePattern = regexp.MustCompile(`^[A-Za-zÁ-ú0-9\s.\-]{3,50}$`)
	pricePattern       = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// ErrInvalidProduct wraps product form rejections.
var ErrInvalidProduct = errors.New("warehouse: invalid product")

// FormError lists the rejected fields of a product form. Message is the first
// problem in form order.
type FormError struct {
	Message string
	Fields  map[string]string
}

func (e *FormError) Error() string { return "warehouse: invalid product: " + e.Message }

// Unwrap matches ErrInvalidProduct.
func (e *FormError) Unwrap() error { return ErrInvalidProduct }

// CatalogLoader fetches catalog snapshots.
type CatalogLoader interface {
	Load(ctx context.Context) (catalog.Snapshot, error)
}

// Creator writes new products upstream.
type Creator interface {
	CreateProduct(ctx context.Context, p backend.Product) error
}

// Query narrows the product listing.
type Query struct {
	Search   string
	Category string
	Order    catalog.Order
	Alerts   bool
}

// Listing is one rendering of the stock table.
type Listing struct {
	Products []catalog.Product `json:"products"`
	Summary  catalog.Summary   `json:"summary"`
	Message  string            `json:"message"`
}

// ProductForm is the new-product form as submitted.
type ProductForm struct {
	Nombre      string      `json:"nombre" validate:"required,productname"`
	Precio      json.Number `json:"precio" validate:"required"`
	Stock       *int        `json:"stock" validate:"required,gte=0"`
	StockMinimo *int        `json:"stockMinimo" validate:"required,gte=0"`
	CategoriaID string      `json:"categoriaId" validate:"required"`
	ProveedorID string      `json:"proveedorId" validate:"required"`
}

// Service answers warehouse queries against freshly loaded catalogs.
type Service struct {
	loader   CatalogLoader
	creator  Creator
	validate *validator.Validate
	loads    singleflight.Group
}

// NewService constructs a Service.
func NewService(loader CatalogLoader, creator Creator) *Service {
	v := validator.New()
	_ = v.RegisterValidation("productname", func(fl validator.FieldLevel) bool {
		return productNamePattern.MatchString(fl.Field().String())
	})
	return &Service{loader: loader, creator: creator, validate: v}
}

// snapshot loads the catalog, sharing one upstream round trip between
// concurrent callers.
func (s *Service) snapshot(ctx context.Context) (catalog.Snapshot, error) {
	ch := s.loads.DoChan("catalog", func() (interface{}, error) {
		return s.loader.Load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return catalog.Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return catalog.Snapshot{}, res.Err
		}
		return res.Val.(catalog.Snapshot), nil
	}
}

// List returns the products matching q with their summary.
func (s *Service) List(ctx context.Context, q Query) (Listing, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return Listing{}, err
	}
	products := catalog.SearchAll(snap.Products, strings.TrimSpace(q.Search))
	products = catalog.FilterByCategory(products, q.Category)
	if q.Alerts {
		products = catalog.BelowMinimum(products)
	}
	if q.Order != "" {
		products = catalog.SortByPrice(products, q.Order)
	}
	sum := catalog.Summarize(products)
	return Listing{
		Products: catalog.WithoutRaw(products),
		Summary:  sum,
		Message:  fmt.Sprintf("Productos mostrados: %d | Valor total del stock: %s €", sum.Count, sum.StockValue.StringFixed(2)),
	}, nil
}

// LowStock returns every product under its minimum stock.
func (s *Service) LowStock(ctx context.Context) ([]catalog.Product, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.WithoutRaw(catalog.BelowMinimum(snap.Products)), nil
}

// Categories lists the product categories.
func (s *Service) Categories(ctx context.Context) ([]catalog.Category, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Categories, nil
}

// Suppliers lists the suppliers.
func (s *Service) Suppliers(ctx context.Context) ([]catalog.Supplier, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Suppliers, nil
}

// CreateProduct validates form and creates the product under the next free id.
func (s *Service) CreateProduct(ctx context.Context, form ProductForm) (catalog.Product, error) {
	form.Nombre = strings.TrimSpace(form.Nombre)
	form.CategoriaID = strings.TrimSpace(form.CategoriaID)
	form.ProveedorID = strings.TrimSpace(form.ProveedorID)

	price, err := s.check(form)
	if err != nil {
		return catalog.Product{}, err
	}

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	category, ok := catalog.FindCategory(snap.Categories, form.CategoriaID)
	if !ok {
		return catalog.Product{}, &FormError{Message: "Categoría no válida", Fields: map[string]string{"categoriaId": "Categoría no válida"}}
	}
	supplier, ok := catalog.FindSupplier(snap.Suppliers, form.ProveedorID)
	if !ok {
		return catalog.Product{}, &FormError{Message: "Proveedor no válido", Fields: map[string]string{"proveedorId": "Proveedor no válido"}}
	}

	id := strconv.FormatInt(catalog.NextProductID(snap.Products), 10)
	priceValue := price.InexactFloat64()
	unitPrice, err := json.Marshal(priceValue)
	if err != nil {
		return catalog.Product{}, err
	}
	p := backend.Product{
		ID:             backend.ID(id),
		Nombre:         form.Nombre,
		Precio:         priceValue,
		PrecioUnitario: unitPrice,
		Stock:          float64(*form.Stock),
		StockMinimo:    float64(*form.StockMinimo),
		CategoriaID:    backend.ID(form.CategoriaID),
		ProveedorID:    backend.ID(form.ProveedorID),
		UnidadMedida:   newProductUnit,
		Alergenos:      []string{},
		Activo:         true,
	}
	if err := s.creator.CreateProduct(ctx, p); err != nil {
		return catalog.Product{}, fmt.Errorf("warehouse: create product: %w", err)
	}
	return catalog.Product{
		ID:           id,
		Nombre:       p.Nombre,
		Precio:       price,
		Stock:        p.Stock,
		StockMinimo:  p.StockMinimo,
		CategoriaID:  form.CategoriaID,
		ProveedorID:  form.ProveedorID,
		Categoria:    category.Nombre,
		Proveedor:    supplier.Nombre,
		UnidadMedida: newProductUnit,
		Activo:       true,
	}, nil
}

var formMessages = map[string]map[string]string{
	"nombre": {
		"required":    "El nombre del producto es obligatorio",
		"productname": "El nombre debe tener 3-50 caracteres (letras, números, guiones y puntos)",
	},
	"precio": {
		"required": "El precio es obligatorio y debe ser un número",
		"gt":       "El precio debe ser mayor a 0",
		"decimals": "El precio debe tener máximo 2 decimales",
	},
	"stock": {
		"required": "El stock es obligatorio y debe ser un número",
		"gte":      "El stock no puede ser negativo",
	},
	"stockMinimo": {
		"required": "El stock es obligatorio y debe ser un número",
		"gte":      "El stock no puede ser negativo",
	},
	"categoriaId": {"required": "Debe seleccionar una categoría"},
	"proveedorId": {"required": "Debe seleccionar un proveedor"},
}

var formOrder = []string{"nombre", "precio", "stock", "stockMinimo", "categoriaId", "proveedorId"}

func (s *Service) check(form ProductForm) (decimal.Decimal, error) {
	fields := map[string]string{}
	if err := s.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return decimal.Decimal{}, fmt.Errorf("warehouse: validate: %w", err)
		}
		for _, fe := range verrs {
			name := formField(fe.Field())
			fields[name] = formMessages[name][fe.Tag()]
		}
	}

	var price decimal.Decimal
	if _, bad := fields["precio"]; !bad {
		raw := strings.TrimSpace(form.Precio.String())
		parsed, err := decimal.NewFromString(raw)
		switch {
		case err != nil:
			fields["precio"] = formMessages["precio"]["required"]
		case !parsed.IsPositive():
			fields["precio"] = formMessages["precio"]["gt"]
		case !pricePattern.MatchString(raw):
			fields["precio"] = formMessages["precio"]["decimals"]
		default:
			price = parsed
		}
	}

	for _, name := range formOrder {
		if msg, ok := fields[name]; ok {
			return decimal.Decimal{}, &FormError{Message: msg, Fields: fields}
		}
	}
	return price, nil
}

func formField(name string) string {
	switch name {
	case "Nombre":
		return "nombre"
	case "Precio":
		return "precio"
	case "Stock":
		return "stock"
	case "StockMinimo":
		return "stockMinimo"
	case "CategoriaID":
		return "categoriaId"
	case "ProveedorID":
		return "proveedorId"
	default:
		return name
	}
}
