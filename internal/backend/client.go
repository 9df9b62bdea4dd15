package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API is the surface of the sales backend this service consumes. Consumers
// depend on this interface so tests can swap in fakes.
type API interface {
	ListOrders(ctx context.Context) ([]OrderDTO, error)
	UpdateOrder(ctx context.Context, id string, patch OrderPatch) (OrderDTO, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentDTO, error)
	ListCustomers(ctx context.Context) ([]CustomerDTO, error)
	ListProducts(ctx context.Context) ([]ProductDTO, error)
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Body)
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ListOrders(ctx context.Context) ([]OrderDTO, error) {
	var out []OrderDTO
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (c *Client) UpdateOrder(ctx context.Context, id string, patch OrderPatch) (OrderDTO, error) {
	var out OrderDTO
	if err := c.do(ctx, http.MethodPatch, "/orders/"+id, patch, &out); err != nil {
		return OrderDTO{}, fmt.Errorf("update order %s: %w", id, err)
	}
	return out, nil
}

func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentDTO, error) {
	var out PaymentDTO
	if err := c.do(ctx, http.MethodPost, "/payments", req, &out); err != nil {
		return PaymentDTO{}, fmt.Errorf("create payment: %w", err)
	}
	return out, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]CustomerDTO, error) {
	var out []CustomerDTO
	if err := c.do(ctx, http.MethodGet, "/customers", nil, &out); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]ProductDTO, error) {
	var out []ProductDTO
	if err := c.do(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
