// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrUpstream marks failures talking to the inventory backend.
var ErrUpstream = errors.New("upstream unavailable")

// RespondError maps errors without a package-specific mapping to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUpstream) {
		Problem(w, http.StatusBadGateway, "Bad Gateway", "Error al conectar con el servidor")
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
