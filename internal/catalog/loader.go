package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/smart-economato/economato/internal/backend"
)

// Source is the subset of the backend client the loader needs.
type Source interface {
	ListProducts(ctx context.Context) ([]backend.ProductRecord, error)
	ListSuppliers(ctx context.Context) ([]backend.Supplier, error)
	ListCategories(ctx context.Context) ([]backend.Category, error)
}

// Loader fetches catalog snapshots.
type Loader struct {
	source Source
	now    func() time.Time
}

// NewLoader constructs a Loader over source.
func NewLoader(source Source) *Loader {
	return &Loader{source: source, now: time.Now}
}

// Load fetches products, suppliers and categories concurrently. If any of the
// three requests fails no snapshot is returned.
func (l *Loader) Load(ctx context.Context) (Snapshot, error) {
	var (
		products   []backend.ProductRecord
		suppliers  []backend.Supplier
		categories []backend.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = l.source.ListProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		suppliers, err = l.source.ListSuppliers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = l.source.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("catalog: load: %w", err)
	}
	return Build(products, suppliers, categories, l.now()), nil
}

// Build normalises raw backend data into a Snapshot.
func Build(products []backend.ProductRecord, suppliers []backend.Supplier, categories []backend.Category, at time.Time) Snapshot {
	snap := Snapshot{
		Products:   make([]Product, 0, len(products)),
		Suppliers:  make([]Supplier, 0, len(suppliers)),
		Categories: make([]Category, 0, len(categories)),
		LoadedAt:   at,
	}
	for _, s := range suppliers {
		snap.Suppliers = append(snap.Suppliers, Supplier{
			ID:        s.ID.String(),
			Nombre:    s.Nombre,
			Contacto:  s.Contacto,
			Telefono:  s.Telefono,
			Email:     s.Email,
			Direccion: s.Direccion,
		})
	}
	for _, c := range categories {
		snap.Categories = append(snap.Categories, Category{ID: c.ID.String(), Nombre: c.Nombre, Descripcion: c.Descripcion})
	}
	for _, rec := range products {
		snap.Products = append(snap.Products, normalise(rec, snap.Suppliers, snap.Categories))
	}
	return snap
}

func normalise(rec backend.ProductRecord, suppliers []Supplier, categories []Category) Product {
	p := rec.Product
	out := Product{
		ID:           p.ID.String(),
		Nombre:       p.Nombre,
		Precio:       decimal.NewFromFloat(p.Precio),
		Stock:        p.Stock,
		StockMinimo:  p.StockMinimo,
		CategoriaID:  p.CategoriaID.String(),
		ProveedorID:  p.ProveedorID.String(),
		Categoria:    Uncategorised,
		UnidadMedida: p.UnidadMedida,
		Activo:       p.Activo,
		Raw:          rec.Raw,
	}
	if c, ok := FindCategory(categories, out.CategoriaID); ok {
		out.Categoria = c.Nombre
	}
	if s, ok := FindSupplier(suppliers, out.ProveedorID); ok {
		out.Proveedor = s.Nombre
	}
	return out
}
