package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"web3-orchestrator/internal/adapter/http/middleware"
	redisStorage "web3-orchestrator/internal/adapter/storage/redis"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/internal/service"
	"web3-orchestrator/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The stack tests run the real router, services and Redis stores against
// miniredis and in-memory repositories. Only the ledger is stubbed.

const stackReceiver = "0x000000000000000000000000000000000000bEEF"

// ledgerStub settles every invoice paid with one of its hashes.
type ledgerStub struct {
	settled map[string]bool
	delay   time.Duration
	calls   atomic.Int32
}

func (l *ledgerStub) Verify(ctx context.Context, inv *domain.Invoice, txHash string) (*domain.PaymentVerdict, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.settled[txHash] {
		return &domain.PaymentVerdict{OK: true}, nil
	}
	return &domain.PaymentVerdict{Reason: service.ReasonNoTransfer}, nil
}

type stack struct {
	server   *httptest.Server
	invoices *memInvoiceRepo
	audit    *memAuditRepo
	ledger   *ledgerStub
}

func newStack(t *testing.T) *stack {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	encSvc, err := service.NewAESEncryptionService("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")

	accountRepo := newMemAccountRepo()
	invoiceRepo := newMemInvoiceRepo()
	auditRepo := &memAuditRepo{}
	ledger := &ledgerStub{settled: map[string]bool{paidHash: true}}

	log := logger.New("error", false)
	reg := prometheus.NewRegistry()
	m := metrics.NewUnregistered(reg)

	webhookSvc := service.NewWebhookService(accountRepo, encSvc, sigSvc, http.DefaultClient, testLinks.ExplorerTxURL, m, log)
	invoiceSvc := service.NewInvoiceService(
		invoiceRepo,
		newMemIdempotencyRepo(),
		redisStorage.NewIdempotencyCache(rdb),
		redisStorage.NewSettlementClaims(rdb),
		redisStorage.NewVerificationCache(rdb),
		ledger,
		webhookSvc,
		&memTransactor{},
		testUSDT,
		11155111,
		m,
		log,
	)

	router := SetupRouter(RouterDeps{
		AuthSvc:        service.NewAuthService(accountRepo, hashSvc, encSvc, tokenSvc, log),
		InvoiceSvc:     invoiceSvc,
		AccountSvc:     service.NewAccountService(accountRepo, encSvc),
		TokenSvc:       tokenSvc,
		AuditSvc:       service.NewAuditService(auditRepo, log),
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		Gatherer:       reg,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Links:          testLinks,
		Token:          testUSDT,
		Mode:           gin.TestMode,
		Logger:         log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &stack{server: server, invoices: invoiceRepo, audit: auditRepo, ledger: ledger}
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

func (s *stack) call(t *testing.T, method, path, token string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeInto(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out), "data: %s", env.Data)
}

// signUp registers and logs in a payee, returning the bearer token.
func (s *stack) signUp(t *testing.T, username string) string {
	t.Helper()

	status, env := s.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":     username,
		"password":     "StrongPass123!",
		"display_name": "Shop " + username,
	}, nil)
	require.Equal(t, http.StatusCreated, status, "register: %s", env.Message)

	status, env = s.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "StrongPass123!",
	}, nil)
	require.Equal(t, http.StatusOK, status, "login: %s", env.Message)

	var login struct {
		Token string `json:"token"`
	}
	decodeInto(t, env, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

type stackInvoice struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	AmountUnits   string `json:"amount_units"`
	TxHash        string `json:"tx_hash"`
	PayURL        string `json:"pay_url"`
	ExplorerTxURL string `json:"explorer_tx_url"`
}

func (s *stack) createInvoice(t *testing.T, token, amount, idemKey string) stackInvoice {
	t.Helper()

	var headers map[string]string
	if idemKey != "" {
		headers = map[string]string{HeaderIdempotencyKey: idemKey}
	}
	status, env := s.call(t, http.MethodPost, "/api/v1/invoices", token, map[string]string{
		"receiver_address": stackReceiver,
		"amount":           amount,
	}, headers)
	require.Equal(t, http.StatusCreated, status, "create: %s", env.Message)

	var inv stackInvoice
	decodeInto(t, env, &inv)
	return inv
}

type stackVerdict struct {
	OK            bool   `json:"ok"`
	Reason        string `json:"reason"`
	ExplorerTxURL string `json:"explorer_tx_url"`
}

func (s *stack) verify(t *testing.T, invoiceID, txHash string) (int, envelope, stackVerdict) {
	t.Helper()
	status, env := s.call(t, http.MethodPost, "/api/v1/public/invoices/"+invoiceID+"/verify", "",
		map[string]string{"tx_hash": txHash}, nil)
	var v stackVerdict
	if status == http.StatusOK {
		decodeInto(t, env, &v)
	}
	return status, env, v
}

func TestStack_Health(t *testing.T) {
	s := newStack(t)

	resp, err := http.Get(s.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStack_InvoiceLifecycle(t *testing.T) {
	s := newStack(t)
	token := s.signUp(t, "alice")

	created := s.createInvoice(t, token, "20", "order-1")
	assert.Equal(t, "UNPAID", created.Status)
	assert.Equal(t, "20", created.Amount)
	assert.Equal(t, "20000000", created.AmountUnits)
	assert.Equal(t, "https://pay.example.com/t-link-pay/pay/"+created.ID, created.PayURL)

	// A replay with the same key returns the first invoice.
	replay := s.createInvoice(t, token, "20", "order-1")
	assert.Equal(t, created.ID, replay.ID)

	status, env := s.call(t, http.MethodGet, "/api/v1/public/invoices/"+created.ID, "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var public stackInvoice
	decodeInto(t, env, &public)
	assert.Equal(t, "UNPAID", public.Status)

	unknown := "0x1111111111111111111111111111111111111111111111111111111111111111"
	status, _, verdict := s.verify(t, created.ID, unknown)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, verdict.OK)
	assert.Equal(t, service.ReasonNoTransfer, verdict.Reason)

	status, _, verdict = s.verify(t, created.ID, paidHash)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verdict.OK)
	assert.Equal(t, testLinks.ExplorerTxURL+paidHash, verdict.ExplorerTxURL)

	status, env = s.call(t, http.MethodGet, "/api/v1/public/invoices/"+created.ID, "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	decodeInto(t, env, &public)
	assert.Equal(t, "PAID", public.Status)
	assert.Equal(t, paidHash, public.TxHash)

	// Verifying again answers from the stored settlement.
	calls := s.ledger.calls.Load()
	status, _, verdict = s.verify(t, created.ID, paidHash)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verdict.OK)
	assert.Equal(t, calls, s.ledger.calls.Load())

	// The same transaction cannot settle a second invoice.
	second := s.createInvoice(t, token, "5.5", "")
	status, _, verdict = s.verify(t, second.ID, paidHash)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, verdict.OK)
	assert.Equal(t, service.ReasonTxUsedElsewhere, verdict.Reason)

	status, env = s.call(t, http.MethodGet, "/api/v1/invoices/stats", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		Total      int64  `json:"total"`
		Paid       int64  `json:"paid"`
		Unpaid     int64  `json:"unpaid"`
		PaidVolume string `json:"paid_volume"`
	}
	decodeInto(t, env, &stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Paid)
	assert.Equal(t, int64(1), stats.Unpaid)
	assert.Equal(t, "20", stats.PaidVolume)

	status, env = s.call(t, http.MethodGet, "/api/v1/invoices?status=paid", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items []stackInvoice `json:"items"`
		Total int64          `json:"total"`
	}
	decodeInto(t, env, &page)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)

	assert.Eventually(t, func() bool {
		seen := map[domain.AuditAction]bool{}
		for _, a := range s.audit.actions() {
			seen[a] = true
		}
		return seen[domain.AuditActionRegister] && seen[domain.AuditActionLogin] &&
			seen[domain.AuditActionCreateInvoice] && seen[domain.AuditActionVerifyPayment]
	}, time.Second, 10*time.Millisecond)
}

func TestStack_InvoicesAreScopedToOwner(t *testing.T) {
	s := newStack(t)
	alice := s.signUp(t, "alice")
	bob := s.signUp(t, "bob")

	s.createInvoice(t, alice, "1", "")

	status, env := s.call(t, http.MethodGet, "/api/v1/invoices", bob, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Total int64 `json:"total"`
	}
	decodeInto(t, env, &page)
	assert.Equal(t, int64(0), page.Total)
}

func TestStack_Unauthenticated(t *testing.T) {
	s := newStack(t)

	status, env := s.call(t, http.MethodPost, "/api/v1/invoices", "", map[string]string{
		"receiver_address": stackReceiver,
		"amount":           "1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_003", env.ErrorCode)
}

func TestStack_OneTransactionSettlesOneInvoice(t *testing.T) {
	s := newStack(t)
	s.ledger.delay = 20 * time.Millisecond
	token := s.signUp(t, "alice")

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = s.createInvoice(t, token, "20", fmt.Sprintf("race-%d", i)).ID
	}

	var (
		wg       sync.WaitGroup
		settled  atomic.Int32
		rejected atomic.Int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, env, verdict := s.verify(t, id, paidHash)
			switch {
			case status == http.StatusOK && verdict.OK:
				settled.Add(1)
			case status == http.StatusOK:
				rejected.Add(1)
			case status == http.StatusConflict && env.ErrorCode == "INV_003":
				rejected.Add(1)
			default:
				t.Errorf("unexpected verify response: %d %s", status, env.ErrorCode)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), settled.Load())
	assert.Equal(t, int32(n-1), rejected.Load())

	stats, err := s.invoices.Stats(context.Background(), s.ownerOf(t, ids[0]))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Paid)
	assert.Equal(t, "20000000", stats.PaidVolumeUnits)
}

func TestStack_ConcurrentVerifySameInvoice(t *testing.T) {
	s := newStack(t)
	s.ledger.delay = 10 * time.Millisecond
	token := s.signUp(t, "alice")
	id := s.createInvoice(t, token, "20", "").ID

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, verdict := s.verify(t, id, paidHash)
			if status == http.StatusOK && verdict.OK {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), ok.Load())
	stats, err := s.invoices.Stats(context.Background(), s.ownerOf(t, id))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Paid)
}

func TestStack_LoginRateLimited(t *testing.T) {
	s := newStack(t)

	limit := int(middleware.DefaultRateLimitRules()["auth_login"].Limit)
	for i := 0; i < limit; i++ {
		status, _ := s.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "nobody",
			"password": "WrongPass123!",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, env := s.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "WrongPass123!",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_001", env.ErrorCode)
}

func (s *stack) ownerOf(t *testing.T, id string) uuid.UUID {
	t.Helper()
	s.invoices.mu.RLock()
	defer s.invoices.mu.RUnlock()
	for _, inv := range s.invoices.invoices {
		if inv.ID.String() == id {
			return inv.OwnerID
		}
	}
	t.Fatalf("invoice %s not stored", id)
	return uuid.Nil
}
