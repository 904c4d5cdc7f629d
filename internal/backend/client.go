// Package backend talks to the Smart Economato REST JSON API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	pathProducts   = "productos"
	pathSuppliers  = "proveedores"
	pathCategories = "categorias"
	pathUsers      = "usuarios"
)

// ErrStatus is wrapped by every StatusError.
var ErrStatus = errors.New("backend: unexpected status")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s: %s", e.Method, e.Path, e.Status)
}

// Unwrap lets callers match ErrStatus with errors.Is.
func (e *StatusError) Unwrap() error { return ErrStatus }

// Client is a thin JSON client for the backend resources.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL. A zero timeout leaves requests bounded
// only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP lets callers supply their own http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// ListProducts returns every product together with its raw record.
func (c *Client) ListProducts(ctx context.Context) ([]ProductRecord, error) {
	var raws []json.RawMessage
	if err := c.do(ctx, http.MethodGet, pathProducts, nil, nil, &raws); err != nil {
		return nil, err
	}
	records := make([]ProductRecord, 0, len(raws))
	for i, raw := range raws {
		var rec ProductRecord
		if err := json.Unmarshal(raw, &rec.Product); err != nil {
			return nil, fmt.Errorf("backend: decode product %d: %w", i, err)
		}
		if err := json.Unmarshal(raw, &rec.Raw); err != nil {
			return nil, fmt.Errorf("backend: decode product %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListSuppliers returns every supplier.
func (c *Client) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var out []Supplier
	if err := c.do(ctx, http.MethodGet, pathSuppliers, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.do(ctx, http.MethodGet, pathCategories, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProduct POSTs a new product.
func (c *Client) CreateProduct(ctx context.Context, p Product) error {
	return c.do(ctx, http.MethodPost, pathProducts, nil, p, nil)
}

// UpdateProduct PUTs the full record for id.
func (c *Client) UpdateProduct(ctx context.Context, id string, rec RawRecord) error {
	return c.do(ctx, http.MethodPut, pathProducts+"/"+url.PathEscape(id), nil, rec, nil)
}

// FindUsers looks users up by credentials. An empty result means the
// credentials were not accepted.
func (c *Client) FindUsers(ctx context.Context, username, password string) ([]User, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)
	var out []User
	if err := c.do(ctx, http.MethodGet, pathUsers, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: "/" + path, Code: resp.StatusCode, Status: resp.Status}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
	}
	return nil
}
