package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"

	"github.com/rs/zerolog"
)

// webhookRetryIntervals are the waits between delivery attempts.
var webhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// WebhookPayload is the JSON body posted to a payee's webhook_url.
type WebhookPayload struct {
	EventType domain.WebhookEvent `json:"event_type"`
	Data      WebhookPayloadData  `json:"data"`
	Signature string              `json:"signature"`
}

// WebhookPayloadData holds the settled invoice in the webhook.
type WebhookPayloadData struct {
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	ChainID     int64  `json:"chain_id"`
	Token       string `json:"token_address"`
	Amount      string `json:"amount"`
	AmountUnits string `json:"amount_units"`
	TxHash      string `json:"tx_hash"`
	ExplorerURL string `json:"explorer_tx_url,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// webhookService implements ports.WebhookService.
type webhookService struct {
	accountRepo    ports.AccountRepository
	encSvc         ports.EncryptionService
	sigSvc         ports.SignatureService
	httpClient     HTTPClient
	explorerTxURL  string
	retryIntervals []time.Duration
	metrics        *metrics.OrchestratorMetrics
	log            zerolog.Logger
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	accountRepo ports.AccountRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	explorerTxURL string,
	m *metrics.OrchestratorMetrics,
	log zerolog.Logger,
) ports.WebhookService {
	return &webhookService{
		accountRepo:    accountRepo,
		encSvc:         encSvc,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		explorerTxURL:  explorerTxURL,
		retryIntervals: webhookRetryIntervals,
		metrics:        m,
		log:            log,
	}
}

// NotifyInvoicePaid signs an INVOICE_PAID event with the owner's webhook
// secret and delivers it asynchronously with retries.
func (s *webhookService) NotifyInvoicePaid(ctx context.Context, invoice *domain.Invoice) error {
	account, err := s.accountRepo.GetByID(ctx, invoice.OwnerID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", invoice.OwnerID.String()).Msg("webhook: failed to fetch account")
		return err
	}
	if account == nil || account.WebhookURL == nil || *account.WebhookURL == "" {
		s.log.Debug().Str("account_id", invoice.OwnerID.String()).Msg("webhook: no webhook URL configured, skipping")
		s.metrics.ObserveWebhook(string(domain.EventInvoicePaid), string(domain.WebhookStatusSkipped))
		return nil
	}

	data := WebhookPayloadData{
		InvoiceID:   invoice.ID.String(),
		Status:      string(invoice.Status),
		ChainID:     invoice.ChainID,
		Token:       invoice.TokenAddress,
		Amount:      invoice.Amount,
		AmountUnits: invoice.AmountUnits,
		Timestamp:   time.Now().Unix(),
	}
	if invoice.TxHash != nil {
		data.TxHash = *invoice.TxHash
		if s.explorerTxURL != "" {
			data.ExplorerURL = s.explorerTxURL + *invoice.TxHash
		}
	}

	secret, err := s.encSvc.Decrypt(account.WebhookSecretEnc)
	if err != nil {
		s.log.Error().Err(err).Msg("webhook: failed to decrypt webhook secret")
		return err
	}

	dataBytes, _ := json.Marshal(data)
	payload := WebhookPayload{
		EventType: domain.EventInvoicePaid,
		Data:      data,
		Signature: s.sigSvc.Sign(secret, string(dataBytes)),
	}

	go s.deliverWithRetries(*account.WebhookURL, payload, invoice.ID.String())

	return nil
}

// deliverWithRetries attempts delivery until a 2xx or the retries run out.
func (s *webhookService) deliverWithRetries(url string, payload WebhookPayload, invoiceID string) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", invoiceID).Msg("webhook: failed to marshal payload")
		return
	}

	for attempt := 0; attempt <= len(s.retryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryIntervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payloadBytes))
		if err != nil {
			s.log.Error().Err(err).Str("invoice_id", invoiceID).Int("attempt", attempt+1).Msg("webhook: failed to create request")
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Event", string(payload.EventType))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", invoiceID).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("invoice_id", invoiceID).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: delivered successfully")
			s.metrics.ObserveWebhook(string(payload.EventType), string(domain.WebhookStatusDelivered))
			return
		}

		s.log.Warn().Str("invoice_id", invoiceID).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
	}

	s.metrics.ObserveWebhook(string(payload.EventType), string(domain.WebhookStatusFailed))
	s.log.Error().Str("invoice_id", invoiceID).Msg("webhook: all retry attempts exhausted")
}
