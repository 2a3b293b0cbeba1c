package ports

import (
	"context"
	"errors"

	"web3-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for payee accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	UpdateWebhookURL(ctx context.Context, id uuid.UUID, url *string) error
	UpdateWebhookSecret(ctx context.Context, id uuid.UUID, secretEnc string) error
}

// ErrTxHashTaken is returned by InvoiceRepository.MarkPaid when another
// invoice already holds the transaction hash.
var ErrTxHashTaken = errors.New("tx_hash already settles another invoice")

// InvoiceRepository defines persistence operations for invoices.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type InvoiceRepository interface {
	Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error)
	GetByTxHash(ctx context.Context, txHash string) (*domain.Invoice, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, int64, error)
	Stats(ctx context.Context, ownerID uuid.UUID) (*domain.InvoiceStats, error)
}

// InvoiceListParams holds filter + pagination for listing invoices.
type InvoiceListParams struct {
	OwnerID  uuid.UUID
	Status   *domain.InvoiceStatus
	Page     int
	PageSize int
}

// ErrIdempotencyKeyTaken is returned by IdempotencyRepository.Create when a
// concurrent request committed the same key first.
var ErrIdempotencyKeyTaken = errors.New("idempotency key already used")

// IdempotencyRepository persists idempotency records (Layer 2, durable).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
