package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an upstream identifier. The backend stores ids as strings, but records
// written by older clients carry plain numbers, so both decode to the same value.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backend: id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as plain text.
func (id ID) String() string { return string(id) }

// Int parses the id as a base-10 integer.
func (id ID) Int() (int64, error) { return strconv.ParseInt(string(id), 10, 64) }

// RawRecord keeps every field of an upstream object, including ones this service
// does not model, so that a PUT can send the record back unchanged.
type RawRecord map[string]json.RawMessage

// Clone returns a shallow copy safe to modify.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Set encodes v and stores it under key.
func (r RawRecord) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r[key] = data
	return nil
}

// Product mirrors the /productos resource.
type Product struct {
	ID             ID              `json:"id"`
	Nombre         string          `json:"nombre"`
	Precio         float64         `json:"precio"`
	PrecioUnitario json.RawMessage `json:"precioUnitario,omitempty"`
	Stock          float64         `json:"stock"`
	StockMinimo    float64         `json:"stockMinimo"`
	CategoriaID    ID              `json:"categoriaId"`
	ProveedorID    ID              `json:"proveedorId"`
	UnidadMedida   string          `json:"unidadMedida"`
	Marca          string          `json:"marca"`
	CodigoBarras   string          `json:"codigoBarras"`
	FechaCaducidad string          `json:"fechaCaducidad"`
	Alergenos      []string        `json:"alergenos"`
	Descripcion    string          `json:"descripcion"`
	Imagen         string          `json:"imagen"`
	Activo         bool            `json:"activo"`
}

// ProductRecord pairs the decoded product with the raw object it came from.
type ProductRecord struct {
	Product Product
	Raw     RawRecord
}

// Category mirrors the /categorias resource.
type Category struct {
	ID          ID     `json:"id"`
	Nombre      string `json:"nombre"`
	Descripcion string `json:"descripcion"`
}

// Supplier mirrors the /proveedores resource.
type Supplier struct {
	ID        ID     `json:"id"`
	Nombre    string `json:"nombre"`
	Contacto  string `json:"contacto"`
	Telefono  string `json:"telefono"`
	Email     string `json:"email"`
	Direccion string `json:"direccion"`
}

// User mirrors the /usuarios resource. Password fields are never decoded.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol"`
}
