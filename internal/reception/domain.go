// Package reception implements the goods-reception workflow: reconciling typed
// line items against the catalog, collecting them in a pending list and
// committing the list to the backend as one batch.
package reception

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smart-economato/economato/internal/catalog"
)

var (
	// ErrValidation marks a rejected line because of a missing or malformed field.
	ErrValidation = errors.New("reception: invalid input")
	// ErrLookup marks a reference (supplier, category, product, confirmation, index) that no longer resolves.
	ErrLookup = errors.New("reception: lookup failed")
	// ErrNotOpen means no reception session exists for the caller.
	ErrNotOpen = errors.New("reception: session not open")
	// ErrNothingToCommit is returned when saving an empty pending list.
	ErrNothingToCommit = errors.New("reception: no items to save")
	// ErrNotConfirmed is returned when a commit was requested without confirmation.
	ErrNotConfirmed = errors.New("reception: commit not confirmed")
	// ErrBatchFailed wraps the failures of one or more calls of a commit.
	ErrBatchFailed = errors.New("reception: batch commit failed")
	// ErrDuplicateCommit is returned when an idempotency key was already used.
	ErrDuplicateCommit = errors.New("reception: commit already processed")
)

// ValidationError lists field-level problems of a rejected line.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("reception: invalid input: %s", strings.Join(keys, ", "))
}

// Unwrap matches ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// LookupError names the reference that did not resolve.
type LookupError struct {
	Message string
}

func (e *LookupError) Error() string { return "reception: lookup failed: " + e.Message }

// Unwrap matches ErrLookup.
func (e *LookupError) Unwrap() error { return ErrLookup }

// LineRequest is what the operator typed into the entry form.
type LineRequest struct {
	NombreProducto string          `json:"nombreProducto" validate:"required,max=120"`
	ProveedorID    string          `json:"proveedorId" validate:"required"`
	CategoriaID    string          `json:"categoriaId" validate:"required"`
	Cantidad       int             `json:"cantidad" validate:"gt=0"`
	Precio         decimal.Decimal `json:"precio"`
	Notas          string          `json:"notas" validate:"max=500"`
}

// LineItem is one row of the pending reception. ProductoID is nil exactly when
// ProductoExistente is false. Total is fixed when the item is added.
type LineItem struct {
	ID                int64            `json:"id"`
	ProductoID        *string          `json:"productoId"`
	NombreProducto    string           `json:"nombreProducto"`
	Cantidad          int              `json:"cantidad"`
	Precio            decimal.Decimal  `json:"precio"`
	Total             decimal.Decimal  `json:"total"`
	ProveedorID       string           `json:"proveedorId"`
	Proveedor         catalog.Supplier `json:"proveedor"`
	CategoriaID       string           `json:"categoriaId"`
	Categoria         string           `json:"categoria"`
	Notas             string           `json:"notas"`
	ProductoExistente bool             `json:"productoExistente"`
}

// PendingConfirmation holds a new-product line until the operator accepts or
// declines it.
type PendingConfirmation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Line      LineRequest      `json:"line"`
	Proveedor catalog.Supplier `json:"proveedor"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Session is the state of one reception screen.
type Session struct {
	Catalog  catalog.Snapshot               `json:"catalog"`
	Items    []LineItem                     `json:"items"`
	Selected *catalog.Product               `json:"selected,omitempty"`
	Pending  map[string]PendingConfirmation `json:"pending,omitempty"`
}

// NewSession returns an empty session over snap.
func NewSession(snap catalog.Snapshot) *Session {
	return &Session{Catalog: snap, Pending: map[string]PendingConfirmation{}}
}

// AddResult is the outcome of adding a line: either an appended item or a
// confirmation the operator must resolve first.
type AddResult struct {
	Item         *LineItem            `json:"item,omitempty"`
	Confirmation *PendingConfirmation `json:"confirmation,omitempty"`
	Notification string               `json:"-"`
}

// CommitSummary is shown to the operator before saving.
type CommitSummary struct {
	Items   int             `json:"items"`
	Units   int             `json:"units"`
	Total   decimal.Decimal `json:"total"`
	Message string          `json:"message"`
}

// CommitResult reports a successful commit.
type CommitResult struct {
	Items           int             `json:"items"`
	NewProducts     int             `json:"newProducts"`
	Restocked       int             `json:"restocked"`
	Units           int             `json:"units"`
	Total           decimal.Decimal `json:"total"`
	Message         string          `json:"message"`
	CatalogReloaded bool            `json:"catalogReloaded"`
	Lines           []LineItem      `json:"-"`
	// ReloadErr is set when the catalog could not be refreshed after saving.
	ReloadErr error `json:"-"`
}

// Summarize totals the pending items.
func Summarize(items []LineItem) CommitSummary {
	sum := CommitSummary{Items: len(items), Total: decimal.Zero}
	for _, it := range items {
		sum.Units += it.Cantidad
		sum.Total = sum.Total.Add(it.Total)
	}
	sum.Message = fmt.Sprintf("¿Confirmas la recepción de %d producto(s) con %d unidades por un total de %s€?",
		sum.Items, sum.Units, sum.Total.StringFixed(2))
	return sum
}
