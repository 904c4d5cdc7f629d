// Package backendtest runs an in-memory stand-in for the REST backend.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/smart-economato/economato/internal/backend"
)

// Call records one request received by the server.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

// UserRecord is a stored user with its plaintext password, as the backend keeps it.
type UserRecord struct {
	backend.User
	Password string
}

// Server serves /productos, /proveedores, /categorias and /usuarios from memory.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	products   []map[string]any
	suppliers  []backend.Supplier
	categories []backend.Category
	users      []UserRecord
	calls      []Call

	failGet  map[string]int
	failPost int
	failPut  map[string]int
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{failGet: map[string]int{}, failPut: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddProduct stores a raw product object.
func (s *Server) AddProduct(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, fields)
}

// AddSupplier stores a supplier.
func (s *Server) AddSupplier(sup backend.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = append(s.suppliers, sup)
}

// AddCategory stores a category.
func (s *Server) AddCategory(cat backend.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, cat)
}

// AddUser stores a user.
func (s *Server) AddUser(u UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

// FailGet makes GET on resource ("productos", ...) answer status.
func (s *Server) FailGet(resource string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet[resource] = status
}

// FailPost makes every POST answer status.
func (s *Server) FailPost(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPost = status
}

// FailPut makes PUT on product id answer status.
func (s *Server) FailPut(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[id] = status
}

// Calls returns every recorded request.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Mutations returns the recorded POST and PUT requests.
func (s *Server) Mutations() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == http.MethodPost || c.Method == http.MethodPut {
			out = append(out, c)
		}
	}
	return out
}

// Product returns the stored object with id, if any.
func (s *Server) Product(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if idOf(p) == id {
			return p, true
		}
	}
	return nil, false
}

// ProductCount returns the number of stored products.
func (s *Server) ProductCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body})

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	resource := parts[0]

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		if status := s.failGet[resource]; status != 0 {
			w.WriteHeader(status)
			return
		}
		switch resource {
		case "productos":
			writeJSON(w, http.StatusOK, s.products)
		case "proveedores":
			writeJSON(w, http.StatusOK, s.suppliers)
		case "categorias":
			writeJSON(w, http.StatusOK, s.categories)
		case "usuarios":
			s.serveUsers(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPost && resource == "productos" && len(parts) == 1:
		if s.failPost != 0 {
			w.WriteHeader(s.failPost)
			return
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.products = append(s.products, obj)
		writeJSON(w, http.StatusCreated, obj)
	case r.Method == http.MethodPut && resource == "productos" && len(parts) == 2:
		id := parts[1]
		if status := s.failPut[id]; status != 0 {
			w.WriteHeader(status)
			return
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for i, p := range s.products {
			if idOf(p) == id {
				s.products[i] = obj
				writeJSON(w, http.StatusOK, obj)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out := []backend.User{}
	for _, u := range s.users {
		if u.Username == q.Get("username") && u.Password == q.Get("password") {
			out = append(out, u.User)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func idOf(p map[string]any) string {
	switch v := p["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
