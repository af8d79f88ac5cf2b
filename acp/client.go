// Package acp provides an HTTP client for the ACP service registry.
//
// The client submits delivery receipts and settlement requests on
// behalf of the agent. It implements delivery.Sink and
// payment.Settlement, so it plugs straight into the agent wiring:
//
//	c := acp.New("https://registry.example.com",
//	    acp.WithToken("acp_..."),
//	)
//	a, err := agent.New(store,
//	    agent.WithSink(c),
//	    agent.WithSettlement(c),
//	)
package acp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/acpflow/delivery"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/payment"
)

// Compile-time interface checks.
var (
	_ delivery.Sink      = (*Client)(nil)
	_ payment.Settlement = (*Client)(nil)
)

// Client talks to an ACP registry over HTTP with Bearer
// authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the Bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a registry client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the registry's error envelope.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// do sends a JSON request and decodes a JSON response into out (when
// out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("acpflow/acp: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("acpflow/acp: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("acpflow/acp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("acpflow/acp: %s %s: %s (status %d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("acpflow/acp: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("acpflow/acp: decode response: %w", err)
	}
	return nil
}

// Deliver implements delivery.Sink by posting the receipt to the
// registry.
func (c *Client) Deliver(ctx context.Context, receipt *delivery.Receipt) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/deliveries", receipt, nil); err != nil {
		return err
	}
	c.logger.Debug("delivery submitted",
		slog.String("delivery_id", receipt.ID.String()),
		slog.String("job_id", receipt.JobID.String()),
	)
	return nil
}

// Delivery fetches a previously submitted receipt.
func (c *Client) Delivery(ctx context.Context, deliveryID id.DeliveryID) (*delivery.Receipt, error) {
	var receipt delivery.Receipt
	err := c.do(ctx, http.MethodGet, "/api/v1/deliveries/"+url.PathEscape(deliveryID.String()), nil, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// CreatePaymentRequest implements payment.Settlement.
func (c *Client) CreatePaymentRequest(ctx context.Context, req *payment.Request) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", req, nil); err != nil {
		return err
	}
	c.logger.Debug("payment request submitted",
		slog.String("request_id", req.ID.String()),
		slog.String("job_id", req.JobID.String()),
		slog.Float64("amount", req.Amount),
	)
	return nil
}

// PaymentStatus implements payment.Settlement.
func (c *Client) PaymentStatus(ctx context.Context, jobID id.JobID) (*payment.Update, error) {
	var update payment.Update
	err := c.do(ctx, http.MethodGet, "/api/v1/payments/"+url.PathEscape(jobID.String()), nil, &update)
	if err != nil {
		return nil, err
	}
	return &update, nil
}

type escrowReleaseRequest struct {
	AgentAmount float64 `json:"agent_amount"`
	Fee         float64 `json:"fee"`
}

type escrowReleaseResponse struct {
	TxID string `json:"tx_id"`
}

// ReleaseEscrow implements payment.Settlement.
func (c *Client) ReleaseEscrow(ctx context.Context, escrowID string, agentAmount, fee float64) (string, error) {
	var resp escrowReleaseResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/escrows/"+url.PathEscape(escrowID)+"/release",
		escrowReleaseRequest{AgentAmount: agentAmount, Fee: fee}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}

type transferRequest struct {
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Token  string  `json:"token"`
}

type transferResponse struct {
	TxID string `json:"tx_id"`
}

// Transfer implements payment.Settlement.
func (c *Client) Transfer(ctx context.Context, to string, amount float64, token string) (string, error) {
	var resp transferResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/transfers", transferRequest{To: to, Amount: amount, Token: token}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}
