package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	claimTTL        = 10 * time.Minute
	verdictCacheTTL = 24 * time.Hour
	idempotencyTTL  = 24 * time.Hour

	defaultPageSize = 20
	maxPageSize     = 100
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// InvoiceServiceImpl implements ports.InvoiceService.
type InvoiceServiceImpl struct {
	invoiceRepo ports.InvoiceRepository
	idempRepo   ports.IdempotencyRepository
	idempCache  ports.IdempotencyCache
	claims      ports.SettlementClaims
	cache       ports.VerificationCache
	verifier    ports.SettlementVerifier
	webhookSvc  ports.WebhookService
	transactor  ports.DBTransactor
	token       domain.Token
	chainID     int64
	metrics     *metrics.OrchestratorMetrics
	log         zerolog.Logger
}

// NewInvoiceService creates a new InvoiceServiceImpl for invoices of token on
// chainID.
func NewInvoiceService(
	invoiceRepo ports.InvoiceRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	claims ports.SettlementClaims,
	cache ports.VerificationCache,
	verifier ports.SettlementVerifier,
	webhookSvc ports.WebhookService,
	transactor ports.DBTransactor,
	token domain.Token,
	chainID int64,
	m *metrics.OrchestratorMetrics,
	log zerolog.Logger,
) *InvoiceServiceImpl {
	return &InvoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		idempRepo:   idempRepo,
		idempCache:  idempCache,
		claims:      claims,
		cache:       cache,
		verifier:    verifier,
		webhookSvc:  webhookSvc,
		transactor:  transactor,
		token:       token,
		chainID:     chainID,
		metrics:     m,
		log:         log,
	}
}

// Create validates the receiver and amount and stores an UNPAID invoice. The
// amount is fixed in base units at creation. With an idempotency key a replay
// returns the invoice created first.
func (s *InvoiceServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
	receiver := strings.TrimSpace(req.ReceiverAddress)
	if !common.IsHexAddress(receiver) {
		return nil, apperror.ErrInvalidAddress("receiver_address")
	}
	amount, err := units.ToBaseUnits(strings.TrimSpace(req.Amount), s.token.Decimals)
	if err != nil || amount.Sign() <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	var idempKey string
	if k := strings.TrimSpace(req.IdempotencyKey); k != "" {
		idempKey = domain.BuildIdempotencyKey(ownerID, k)

		// Layer 1: Redis idempotency check
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return unmarshalCachedInvoice(cached, ownerID)
		}

		// Layer 2: DB idempotency check
		idempLog, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if idempLog != nil {
			return unmarshalCachedInvoice(idempLog.ResponseJSON, ownerID)
		}
	}

	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Status:          domain.InvoiceStatusUnpaid,
		ReceiverAddress: common.HexToAddress(receiver).Hex(),
		ReceiverName:    trimmedOrNil(req.ReceiverName),
		ChainID:         s.chainID,
		TokenAddress:    s.token.Address.Hex(),
		TokenSymbol:     s.token.Symbol,
		TokenDecimals:   s.token.Decimals,
		Amount:          units.FromBaseUnits(amount, s.token.Decimals),
		AmountUnits:     amount.String(),
		Description:     trimmedOrNil(req.Description),
		CreatedAt:       now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.invoiceRepo.Create(ctx, dbTx, inv); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create invoice: %w", err))
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(inv)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:          idempKey,
			InvoiceID:    inv.ID,
			ResponseJSON: respJSON,
			CreatedAt:    now,
		}); err != nil {
			if errors.Is(err, ports.ErrIdempotencyKeyTaken) {
				_ = dbTx.Rollback(ctx)
				return s.replayIdempotent(ctx, idempKey, ownerID)
			}
			return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("invoice_id", inv.ID.String()).
		Str("owner_id", ownerID.String()).
		Str("amount_units", inv.AmountUnits).
		Msg("invoice created")
	return inv, nil
}

// replayIdempotent returns the invoice a concurrent request stored under key.
func (s *InvoiceServiceImpl) replayIdempotent(ctx context.Context, key string, ownerID uuid.UUID) (*domain.Invoice, error) {
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency key %s taken but not found", key))
	}
	return unmarshalCachedInvoice(idempLog.ResponseJSON, ownerID)
}

func unmarshalCachedInvoice(data []byte, ownerID uuid.UUID) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached invoice: %w", err))
	}
	inv.OwnerID = ownerID
	return &inv, nil
}

// Get returns an invoice by id.
func (s *InvoiceServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get invoice: %w", err))
	}
	if inv == nil {
		return nil, apperror.ErrNotFound("invoice")
	}
	return inv, nil
}

// List returns a page of the owner's invoices, newest first.
func (s *InvoiceServiceImpl) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	invoices, total, err := s.invoiceRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list invoices: %w", err))
	}
	return invoices, total, nil
}

func (s *InvoiceServiceImpl) Stats(ctx context.Context, ownerID uuid.UUID) (*domain.InvoiceStats, error) {
	stats, err := s.invoiceRepo.Stats(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("invoice stats: %w", err))
	}
	return stats, nil
}

// VerifyPayment is the only path from UNPAID to PAID. It binds txHash to the
// invoice, has the ledger checked independently of the caller and flips the
// status under a row lock once the transfer matches.
func (s *InvoiceServiceImpl) VerifyPayment(ctx context.Context, id uuid.UUID, txHash string) (*domain.PaymentVerdict, error) {
	txHash = strings.TrimSpace(txHash)
	if !txHashRe.MatchString(txHash) {
		return nil, apperror.Validation("Invalid transaction hash")
	}
	txHash = strings.ToLower(txHash)

	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		return s.paidVerdict(inv, txHash), nil
	}

	// Layer 1: cached verdict
	cached, err := s.cache.Get(ctx, id, txHash)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", id.String()).Msg("verification cache read failed, falling through")
	}
	if cached != nil {
		return cached, nil
	}

	// Layer 2: a hash that already settled something else
	other, err := s.invoiceRepo.GetByTxHash(ctx, txHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup tx hash: %w", err))
	}
	if other != nil && other.ID != id {
		return s.reject(ctx, id, txHash, ReasonTxUsedElsewhere, false), nil
	}

	// Layer 3: bind the hash to this invoice while the ledger is checked
	claimed, err := s.claims.Claim(ctx, txHash, id, claimTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("tx", txHash).Msg("settlement claim failed, relying on unique tx_hash")
		claimed = true
	}
	if !claimed {
		return nil, apperror.ErrTxAlreadyClaimed()
	}

	verdict, err := s.verifier.Verify(ctx, inv, txHash)
	if err != nil {
		s.release(ctx, txHash)
		s.metrics.ObserveVerification("error")
		s.log.Warn().Err(err).Str("invoice_id", id.String()).Str("tx", txHash).Msg("ledger check unavailable")
		return nil, apperror.ErrVerifierUnreachable(err)
	}
	if !verdict.OK {
		return s.reject(ctx, id, txHash, verdict.Reason, true), nil
	}

	paid, err := s.markPaid(ctx, id, txHash)
	if err != nil {
		s.release(ctx, txHash)
		return nil, err
	}
	if !paid.IsPaid() || paid.TxHash == nil || *paid.TxHash != txHash {
		return s.paidVerdict(paid, txHash), nil
	}

	ok := &domain.PaymentVerdict{OK: true}
	if err := s.cache.Set(ctx, id, txHash, ok, verdictCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", id.String()).Msg("failed to cache verdict")
	}
	if err := s.webhookSvc.NotifyInvoicePaid(ctx, paid); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", id.String()).Msg("failed to enqueue webhook")
	}
	s.metrics.ObserveVerification("ok")
	s.log.Info().Str("invoice_id", id.String()).Str("tx", txHash).Msg("invoice paid")
	return ok, nil
}

// markPaid flips the invoice under a row lock. If another request settled it
// first, the stored invoice is returned unchanged.
func (s *InvoiceServiceImpl) markPaid(ctx context.Context, id uuid.UUID, txHash string) (*domain.Invoice, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	inv, err := s.invoiceRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	if inv == nil {
		return nil, apperror.ErrNotFound("invoice")
	}
	if err := inv.MarkPaid(txHash, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return inv, nil
		}
		return nil, apperror.InternalError(err)
	}
	if err := s.invoiceRepo.MarkPaid(ctx, dbTx, inv); err != nil {
		if errors.Is(err, ports.ErrTxHashTaken) {
			return nil, apperror.ErrTxAlreadyClaimed()
		}
		return nil, apperror.InternalError(fmt.Errorf("mark paid: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return inv, nil
}

func (s *InvoiceServiceImpl) paidVerdict(inv *domain.Invoice, txHash string) *domain.PaymentVerdict {
	if inv.TxHash != nil && strings.EqualFold(*inv.TxHash, txHash) {
		return &domain.PaymentVerdict{OK: true}
	}
	return &domain.PaymentVerdict{Reason: ReasonAlreadyPaid}
}

// reject records a definitive negative verdict.
func (s *InvoiceServiceImpl) reject(ctx context.Context, id uuid.UUID, txHash, reason string, release bool) *domain.PaymentVerdict {
	if release {
		s.release(ctx, txHash)
	}
	verdict := &domain.PaymentVerdict{Reason: reason}
	if err := s.cache.Set(ctx, id, txHash, verdict, verdictCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", id.String()).Msg("failed to cache verdict")
	}
	s.metrics.ObserveVerification("rejected")
	s.log.Info().Str("invoice_id", id.String()).Str("tx", txHash).Str("reason", reason).Msg("payment rejected")
	return verdict
}

func (s *InvoiceServiceImpl) release(ctx context.Context, txHash string) {
	if err := s.claims.Release(ctx, txHash); err != nil {
		s.log.Warn().Err(err).Str("tx", txHash).Msg("failed to release settlement claim")
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
