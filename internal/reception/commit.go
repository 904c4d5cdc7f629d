package reception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/catalog"
)

// Defaults applied to products created from a reception line.
const (
	newProductUnit        = "kg"
	newProductMinStock    = 10
	newProductCategoryID  = "1"
	msgCommitSaved        = "Recepción guardada: %d producto(s), %d unidades"
	msgCommitSavedWithNew = "Recepción guardada: %d producto(s) (%d nuevos), %d unidades"
)

// Writer persists product changes upstream.
type Writer interface {
	CreateProduct(ctx context.Context, p backend.Product) error
	UpdateProduct(ctx context.Context, id string, rec backend.RawRecord) error
}

// CatalogLoader fetches a fresh catalog snapshot.
type CatalogLoader interface {
	Load(ctx context.Context) (catalog.Snapshot, error)
}

// Open loads a fresh catalog and returns an empty session over it.
func (e *Engine) Open(ctx context.Context) (*Session, error) {
	snap, err := e.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewSession(snap), nil
}

// PrepareCommit returns the confirmation prompt for the pending list.
func (e *Engine) PrepareCommit(sess *Session) (CommitSummary, error) {
	if len(sess.Items) == 0 {
		return CommitSummary{}, ErrNothingToCommit
	}
	return Summarize(sess.Items), nil
}

type call struct {
	desc string
	run  func(ctx context.Context) error
}

// Commit writes every pending item upstream: new products are created with the
// next free ids, existing ones get their stock raised and price replaced. The
// calls run concurrently and are all awaited. When any of them fails the
// pending list is kept and ErrBatchFailed is returned; calls that already
// succeeded are not undone.
func (e *Engine) Commit(ctx context.Context, sess *Session, confirmed bool) (CommitResult, error) {
	if len(sess.Items) == 0 {
		return CommitResult{}, ErrNothingToCommit
	}
	if !confirmed {
		return CommitResult{}, ErrNotConfirmed
	}

	var (
		calls    []call
		newCount int
		restock  int
	)
	for _, item := range sess.Items {
		if item.ProductoExistente {
			continue
		}
		id := catalog.NextProductID(sess.Catalog.Products)
		product := newProduct(id, item)
		sess.Catalog.Products = append(sess.Catalog.Products, catalogProduct(product, item))
		newCount++
		calls = append(calls, call{
			desc: "create " + item.NombreProducto,
			run:  func(ctx context.Context) error { return e.writer.CreateProduct(ctx, product) },
		})
	}
	for _, item := range sess.Items {
		if !item.ProductoExistente || item.ProductoID == nil {
			continue
		}
		current, ok := catalog.FindProduct(sess.Catalog.Products, *item.ProductoID)
		if !ok {
			continue
		}
		rec, err := restockRecord(current, item)
		if err != nil {
			return CommitResult{}, fmt.Errorf("reception: encode product %s: %w", current.ID, err)
		}
		restock++
		id := current.ID
		calls = append(calls, call{
			desc: "update " + id,
			run:  func(ctx context.Context) error { return e.writer.UpdateProduct(ctx, id, rec) },
		})
	}

	errs := make([]error, len(calls))
	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			if err := c.run(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.desc, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return CommitResult{}, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}

	summary := Summarize(sess.Items)
	result := CommitResult{
		Items:       summary.Items,
		NewProducts: newCount,
		Restocked:   restock,
		Units:       summary.Units,
		Total:       summary.Total,
		Lines:       sess.Items,
	}
	if newCount > 0 {
		result.Message = fmt.Sprintf(msgCommitSavedWithNew, result.Items, newCount, result.Units)
	} else {
		result.Message = fmt.Sprintf(msgCommitSaved, result.Items, result.Units)
	}

	sess.Items = nil
	sess.Selected = nil
	// confirmations opened against the old catalog are not reusable
	sess.Pending = nil
	snap, err := e.loader.Load(ctx)
	if err != nil {
		result.ReloadErr = err
		return result, nil
	}
	sess.Catalog = snap
	result.CatalogReloaded = true
	return result, nil
}

func newProduct(id int64, item LineItem) backend.Product {
	categoryID := item.CategoriaID
	if categoryID == "" {
		categoryID = newProductCategoryID
	}
	return backend.Product{
		ID:             backend.ID(strconv.FormatInt(id, 10)),
		Nombre:         item.NombreProducto,
		Precio:         item.Precio.InexactFloat64(),
		PrecioUnitario: json.RawMessage(strconv.Quote(newProductUnit)),
		Stock:          float64(item.Cantidad),
		StockMinimo:    newProductMinStock,
		CategoriaID:    backend.ID(categoryID),
		ProveedorID:    backend.ID(item.ProveedorID),
		UnidadMedida:   newProductUnit,
		Alergenos:      []string{},
		Descripcion:    item.Notas,
		Activo:         true,
	}
}

func catalogProduct(p backend.Product, item LineItem) catalog.Product {
	return catalog.Product{
		ID:           p.ID.String(),
		Nombre:       p.Nombre,
		Precio:       item.Precio,
		Stock:        p.Stock,
		StockMinimo:  p.StockMinimo,
		CategoriaID:  p.CategoriaID.String(),
		ProveedorID:  p.ProveedorID.String(),
		Categoria:    item.Categoria,
		Proveedor:    item.Proveedor.Nombre,
		UnidadMedida: p.UnidadMedida,
		Activo:       true,
	}
}

// restockRecord returns the product's full upstream record with the received
// quantity added to its stock and the reception price applied.
func restockRecord(p catalog.Product, item LineItem) (backend.RawRecord, error) {
	rec := p.Raw.Clone()
	stock := decimal.NewFromFloat(p.Stock).Add(decimal.NewFromInt(int64(item.Cantidad)))
	if err := rec.Set("stock", stock.InexactFloat64()); err != nil {
		return nil, err
	}
	if err := rec.Set("precio", item.Precio.InexactFloat64()); err != nil {
		return nil, err
	}
	if _, ok := rec["id"]; !ok {
		if err := rec.Set("id", p.ID); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
