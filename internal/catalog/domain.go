// Package catalog loads the product, supplier and category snapshot shown on
// each screen and answers the list queries run against it.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smart-economato/economato/internal/backend"
)

// Uncategorised labels products whose category cannot be resolved.
const Uncategorised = "Sin categoría"

// Product is the normalised view of a backend product.
type Product struct {
	ID           string            `json:"id"`
	Nombre       string            `json:"nombre"`
	Precio       decimal.Decimal   `json:"precio"`
	Stock        float64           `json:"stock"`
	StockMinimo  float64           `json:"stockMinimo"`
	CategoriaID  string            `json:"categoriaId"`
	ProveedorID  string            `json:"proveedorId"`
	Categoria    string            `json:"categoria"`
	Proveedor    string            `json:"proveedor,omitempty"`
	UnidadMedida string            `json:"unidadMedida,omitempty"`
	Activo       bool              `json:"activo"`
	Raw          backend.RawRecord `json:"raw,omitempty"`
}

// Category is a product family.
type Category struct {
	ID          string `json:"id"`
	Nombre      string `json:"nombre"`
	Descripcion string `json:"descripcion"`
}

// Supplier is a goods provider.
type Supplier struct {
	ID        string `json:"id"`
	Nombre    string `json:"nombre"`
	Contacto  string `json:"contacto"`
	Telefono  string `json:"telefono"`
	Email     string `json:"email"`
	Direccion string `json:"direccion"`
}

// Snapshot is everything loaded for one screen visit.
type Snapshot struct {
	Products   []Product  `json:"products"`
	Suppliers  []Supplier `json:"suppliers"`
	Categories []Category `json:"categories"`
	LoadedAt   time.Time  `json:"loadedAt"`
}

// Summary aggregates a product listing.
type Summary struct {
	Count      int             `json:"count"`
	StockValue decimal.Decimal `json:"stockValue"`
}

// Order selects the direction of SortByPrice.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)
