package reception

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smart-economato/economato/internal/catalog"
)

const (
	msgRequiredFields  = "Por favor completa todos los campos obligatorios"
	msgInvalidSupplier = "Proveedor no válido"
	msgInvalidCategory = "Categoría no válida"
	msgItemAdded       = "Item agregado correctamente"
	msgItemRemoved     = "Item eliminado"
	newProductTitle    = "Producto Nuevo"
)

// Engine reconciles entry lines against a session's catalog and commits the
// pending list. It holds no per-session state.
type Engine struct {
	writer   Writer
	loader   CatalogLoader
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewEngine constructs an Engine writing through writer and reloading the
// catalog through loader.
func NewEngine(writer Writer, loader CatalogLoader) *Engine {
	return &Engine{
		writer:   writer,
		loader:   loader,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Select records an autocomplete pick. It takes precedence over name matching
// for the next AddItem.
func (e *Engine) Select(sess *Session, productID string) (catalog.Product, error) {
	p, ok := catalog.FindProduct(sess.Catalog.Products, productID)
	if !ok {
		return catalog.Product{}, &LookupError{Message: "Producto no válido"}
	}
	sess.Selected = &p
	return p, nil
}

// ClearSelection forgets the autocomplete pick.
func (e *Engine) ClearSelection(sess *Session) {
	sess.Selected = nil
}

// AddItem validates req and either appends a line for an existing product or
// returns a confirmation for a new one. Rejected lines leave sess untouched.
func (e *Engine) AddItem(sess *Session, req LineRequest) (AddResult, error) {
	req = normaliseLine(req)
	if err := e.check(req); err != nil {
		return AddResult{}, err
	}

	supplier, ok := catalog.FindSupplier(sess.Catalog.Suppliers, req.ProveedorID)
	if !ok {
		return AddResult{}, &LookupError{Message: msgInvalidSupplier}
	}
	if _, ok := catalog.FindCategory(sess.Catalog.Categories, req.CategoriaID); !ok {
		return AddResult{}, &LookupError{Message: msgInvalidCategory}
	}

	var (
		target catalog.Product
		found  bool
	)
	if sess.Selected != nil {
		target, found = *sess.Selected, true
	} else {
		target, found = catalog.FindProductByName(sess.Catalog.Products, req.NombreProducto)
	}

	if !found {
		pc := PendingConfirmation{
			ID:        e.newID(),
			Title:     newProductTitle,
			Message:   newProductMessage(req, supplier),
			Line:      req,
			Proveedor: supplier,
			CreatedAt: e.now(),
		}
		if sess.Pending == nil {
			sess.Pending = map[string]PendingConfirmation{}
		}
		sess.Pending[pc.ID] = pc
		return AddResult{Confirmation: &pc}, nil
	}

	item := e.appendItem(sess, &target, req, supplier)
	return AddResult{Item: &item, Notification: msgItemAdded}, nil
}

// ResolveConfirmation settles a pending new-product line. Declining discards
// it without adding anything. When the name has since appeared in the catalog
// the line restocks that product instead of creating a second one.
func (e *Engine) ResolveConfirmation(sess *Session, id string, accepted bool) (AddResult, error) {
	pc, ok := sess.Pending[id]
	if !ok {
		return AddResult{}, &LookupError{Message: "Confirmación no encontrada"}
	}
	delete(sess.Pending, id)
	if !accepted {
		return AddResult{}, nil
	}
	var target *catalog.Product
	if p, found := catalog.FindProductByName(sess.Catalog.Products, pc.Line.NombreProducto); found {
		target = &p
	}
	item := e.appendItem(sess, target, pc.Line, pc.Proveedor)
	return AddResult{Item: &item, Notification: msgItemAdded}, nil
}

// RemoveItem deletes the pending item at index.
func (e *Engine) RemoveItem(sess *Session, index int) (string, error) {
	if index < 0 || index >= len(sess.Items) {
		return "", &LookupError{Message: "Item no encontrado"}
	}
	sess.Items = append(sess.Items[:index], sess.Items[index+1:]...)
	return msgItemRemoved, nil
}

func (e *Engine) appendItem(sess *Session, product *catalog.Product, req LineRequest, supplier catalog.Supplier) LineItem {
	id := e.now().UnixMilli()
	if n := len(sess.Items); n > 0 && id <= sess.Items[n-1].ID {
		id = sess.Items[n-1].ID + 1
	}
	item := LineItem{
		ID:             id,
		NombreProducto: req.NombreProducto,
		Cantidad:       req.Cantidad,
		Precio:         req.Precio,
		Total:          req.Precio.Mul(decimal.NewFromInt(int64(req.Cantidad))),
		ProveedorID:    supplier.ID,
		Proveedor:      supplier,
		CategoriaID:    req.CategoriaID,
		Categoria:      catalog.Uncategorised,
		Notas:          req.Notas,
	}
	if product != nil {
		pid := product.ID
		item.ProductoID = &pid
		item.Categoria = product.Categoria
		item.ProductoExistente = true
	}
	sess.Items = append(sess.Items, item)
	sess.Selected = nil
	return item
}

func (e *Engine) check(req LineRequest) error {
	fields := map[string]string{}
	if err := e.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("reception: validate: %w", err)
		}
		for _, fe := range verrs {
			fields[jsonField(fe.Field())] = fe.Tag()
		}
	}
	if req.Precio.IsNegative() {
		fields["precio"] = "gte"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: msgRequiredFields, Fields: fields}
	}
	return nil
}

func normaliseLine(req LineRequest) LineRequest {
	req.NombreProducto = strings.TrimSpace(req.NombreProducto)
	req.ProveedorID = strings.TrimSpace(req.ProveedorID)
	req.CategoriaID = strings.TrimSpace(req.CategoriaID)
	req.Notas = strings.TrimSpace(req.Notas)
	return req
}

func newProductMessage(req LineRequest, supplier catalog.Supplier) string {
	return fmt.Sprintf("El producto %q no existe en el sistema.\n\n¿Deseas crear un nuevo producto con estos datos?\n\nCantidad: %d\nPrecio: €%s\nProveedor: %s",
		req.NombreProducto, req.Cantidad, req.Precio.StringFixed(2), supplier.Nombre)
}

func jsonField(name string) string {
	switch name {
	case "NombreProducto":
		return "nombreProducto"
	case "ProveedorID":
		return "proveedorId"
	case "CategoriaID":
		return "categoriaId"
	case "Cantidad":
		return "cantidad"
	case "Notas":
		return "notas"
	default:
		return strings.ToLower(name)
	}
}
