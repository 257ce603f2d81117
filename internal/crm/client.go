// Package crm is the HTTP gateway to the KeyCRM REST API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RPS and Burst bound outgoing request rate; RPS <= 0 disables limiting.
	RPS   float64
	Burst int
	HTTP  *http.Client
}

// Client issues authenticated requests against the CRM. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(o Options) *Client {
	hc := o.HTTP
	if hc == nil {
		timeout := o.Timeout
		if timeout <= 0 { timeout = 10 * time.Second }
		hc = &http.Client{Timeout: timeout}
	}
	var lim *rate.Limiter
	if o.RPS > 0 {
		burst := o.Burst
		if burst <= 0 { burst = 1 }
		lim = rate.NewLimiter(rate.Limit(o.RPS), burst)
	}
	return &Client{baseURL: strings.TrimRight(o.BaseURL, "/"), token: o.Token, http: hc, limiter: lim}
}

func (c *Client) CreatePipelineCard(ctx context.Context, req PipelineCardRequest) (PipelineCard, error) {
	var out PipelineCard
	err := c.do(ctx, http.MethodPost, "/pipelines/cards", req, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodPost, "/order", req, &out)
	return out, err
}

func (c *Client) CreatePayment(ctx context.Context, orderID string, req PaymentRequest) (Payment, error) {
	var out Payment
	err := c.do(ctx, http.MethodPost, "/order/"+url.PathEscape(orderID)+"/payment", req, &out)
	return out, err
}

func (c *Client) UpdateOrder(ctx context.Context, orderID string, req OrderUpdate) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodPut, "/order/"+url.PathEscape(orderID), req, &out)
	return out, err
}

func (c *Client) ListPaymentMethods(ctx context.Context) (PaymentMethodList, error) {
	var out PaymentMethodList
	err := c.do(ctx, http.MethodGet, "/order/payment-method", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil { return fmt.Errorf("crm rate limit: %w", err) }
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil { return fmt.Errorf("encode %s %s: %w", method, path, err) }
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil { return err }
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil { return fmt.Errorf("crm %s %s: %w", method, path, err) }
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil { return fmt.Errorf("crm %s %s: read body: %w", method, path, err) }
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 { return nil }
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("crm %s %s: decode response: %w", method, path, err)
	}
	return nil
}
