// Package invoiceclient is the payer-side InvoiceStore backed by the
// orchestrator's HTTP API.
package invoiceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"web3-orchestrator/internal/adapter/http/dto"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/response"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client implements ports.InvoiceStore over HTTP.
type Client struct {
	baseURL string
	token   string // payee JWT, only needed for CreateInvoice
	http    *http.Client
}

var _ ports.InvoiceStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on authenticated calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateInvoice creates an invoice owned by the token's account. A set
// IdempotencyKey makes the call safe to retry.
func (c *Client) CreateInvoice(ctx context.Context, req ports.CreateInvoiceRequest) (uuid.UUID, error) {
	body := dto.CreateInvoiceRequest{
		ReceiverAddress: req.ReceiverAddress,
		ReceiverName:    req.ReceiverName,
		Amount:          req.Amount,
		Description:     req.Description,
	}
	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	var out dto.InvoiceResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices", headers, body, &out); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(out.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create invoice: bad id %q: %w", out.ID, err)
	}
	return id, nil
}

// GetInvoice fetches an invoice from the public pay-link API.
func (c *Client) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var out dto.InvoiceResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/public/invoices/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return toDomain(&out)
}

// VerifyPayment asks the API whether txRef settles the invoice. Transport
// failures surface as VER_002 so the caller can retry.
func (c *Client) VerifyPayment(ctx context.Context, id uuid.UUID, txRef string) (*domain.PaymentVerdict, error) {
	var out dto.VerifyPaymentResponse
	path := "/api/v1/public/invoices/" + id.String() + "/verify"
	if err := c.do(ctx, http.MethodPost, path, nil, dto.VerifyPaymentRequest{TxHash: txRef}, &out); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.ErrVerifierUnreachable(err)
	}
	return &domain.PaymentVerdict{OK: out.OK, Reason: out.Reason}, nil
}

// do sends one request and decodes the success envelope's data into out.
// Error envelopes come back as *apperror.AppError with the server's code.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		var envelope response.ErrorResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.ErrorCode != "" {
			return apperror.New(envelope.ErrorCode, envelope.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s failed: status=%d", method, path, resp.StatusCode)
	}

	envelope := response.SuccessResponse{Data: out}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func toDomain(r *dto.InvoiceResponse) (*domain.Invoice, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invoice: bad id %q: %w", r.ID, err)
	}
	inv := &domain.Invoice{
		ID:              id,
		Status:          domain.InvoiceStatus(r.Status),
		ReceiverAddress: r.ReceiverAddress,
		ReceiverName:    r.ReceiverName,
		ChainID:         r.ChainID,
		TokenAddress:    r.TokenAddress,
		TokenSymbol:     r.TokenSymbol,
		TokenDecimals:   r.TokenDecimals,
		Amount:          r.Amount,
		AmountUnits:     r.AmountUnits,
		Description:     r.Description,
		TxHash:          r.TxHash,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		inv.CreatedAt = t
	}
	if r.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.PaidAt); err == nil {
			inv.PaidAt = &t
		}
	}
	return inv, nil
}
