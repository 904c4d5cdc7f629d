package catalog

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// MinSuggestLength is the shortest query that produces autocomplete suggestions.
const MinSuggestLength = 2

func fold(s string) string {
	return cases.Fold().String(s)
}

// Search returns the products whose name contains q, ignoring case. An empty
// query returns every product.
func Search(products []Product, q string) []Product {
	if q == "" {
		return slices.Clone(products)
	}
	needle := fold(q)
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(fold(p.Nombre), needle) {
			out = append(out, p)
		}
	}
	return out
}

// SearchAll matches q against product, category and supplier names.
func SearchAll(products []Product, q string) []Product {
	if q == "" {
		return slices.Clone(products)
	}
	needle := fold(q)
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(fold(p.Nombre), needle) ||
			strings.Contains(fold(p.Categoria), needle) ||
			strings.Contains(fold(p.Proveedor), needle) {
			out = append(out, p)
		}
	}
	return out
}

// Suggest returns autocomplete candidates for a typed product name.
func Suggest(products []Product, q string) []Product {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinSuggestLength {
		return nil
	}
	return Search(products, q)
}

// FilterByCategory keeps products whose category name equals name. An empty
// name returns every product.
func FilterByCategory(products []Product, name string) []Product {
	if name == "" {
		return slices.Clone(products)
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Categoria == name {
			out = append(out, p)
		}
	}
	return out
}

// SortByPrice returns a copy ordered by price. Products with equal prices keep
// their relative order.
func SortByPrice(products []Product, order Order) []Product {
	out := slices.Clone(products)
	slices.SortStableFunc(out, func(a, b Product) int {
		if order == OrderDesc {
			return b.Precio.Cmp(a.Precio)
		}
		return a.Precio.Cmp(b.Precio)
	})
	return out
}

// BelowMinimum returns products whose stock is strictly under their minimum.
func BelowMinimum(products []Product) []Product {
	out := make([]Product, 0)
	for _, p := range products {
		if p.Stock < p.StockMinimo {
			out = append(out, p)
		}
	}
	return out
}

// NextProductID returns one more than the largest numeric product id. Ids that
// do not parse count as zero; an empty catalog yields 1. Nothing guards against
// another session allocating the same id concurrently.
func NextProductID(products []Product) int64 {
	var highest int64
	for _, p := range products {
		id, err := strconv.ParseInt(strings.TrimSpace(p.ID), 10, 64)
		if err != nil {
			continue
		}
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// Summarize counts products and values their stock at unit price.
func Summarize(products []Product) Summary {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Precio.Mul(decimal.NewFromFloat(p.Stock)))
	}
	return Summary{Count: len(products), StockValue: total.Round(2)}
}

// FindProduct looks a product up by id.
func FindProduct(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// FindProductByName returns the first product whose name equals name, ignoring case.
func FindProductByName(products []Product, name string) (Product, bool) {
	target := fold(name)
	for _, p := range products {
		if fold(p.Nombre) == target {
			return p, true
		}
	}
	return Product{}, false
}

// FindSupplier looks a supplier up by id.
func FindSupplier(suppliers []Supplier, id string) (Supplier, bool) {
	for _, s := range suppliers {
		if s.ID == id {
			return s, true
		}
	}
	return Supplier{}, false
}

// FindCategory looks a category up by id.
func FindCategory(categories []Category, id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// WithoutRaw returns copies of products with their upstream records dropped,
// for responses that only need the normalised fields.
func WithoutRaw(products []Product) []Product {
	out := make([]Product, len(products))
	for i, p := range products {
		p.Raw = nil
		out[i] = p
	}
	return out
}
