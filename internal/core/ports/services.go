package ports

import (
	"context"
	"time"

	"web3-orchestrator/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Username  string
}

// SettlementClaims binds a transaction hash to the single invoice it may settle.
type SettlementClaims interface {
	// Claim atomically binds txHash to invoiceID. It returns true when the
	// claim is new or already held by the same invoice.
	Claim(ctx context.Context, txHash string, invoiceID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, txHash string) error
}

// VerificationCache remembers definitive verdicts per invoice and transaction.
type VerificationCache interface {
	Get(ctx context.Context, invoiceID uuid.UUID, txHash string) (*domain.PaymentVerdict, error) // nil on miss
	Set(ctx context.Context, invoiceID uuid.UUID, txHash string, verdict *domain.PaymentVerdict, ttl time.Duration) error
}

// IdempotencyCache is the fast idempotency layer (Layer 1).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SettlementVerifier checks the ledger for a transfer settling an invoice.
// A returned verdict is definitive; an error means the ledger could not be
// consulted and the check may be retried.
type SettlementVerifier interface {
	Verify(ctx context.Context, invoice *domain.Invoice, txHash string) (*domain.PaymentVerdict, error)
}

// InvoiceStore is the remote invoice store as seen by a paying client.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (uuid.UUID, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	VerifyPayment(ctx context.Context, id uuid.UUID, txRef string) (*domain.PaymentVerdict, error)
}

// --- Service Ports (Business Logic) ---

// InvoiceService defines the server-side invoice business logic.
type InvoiceService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req CreateInvoiceRequest) (*domain.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, int64, error)
	Stats(ctx context.Context, ownerID uuid.UUID) (*domain.InvoiceStats, error)
	VerifyPayment(ctx context.Context, id uuid.UUID, txHash string) (*domain.PaymentVerdict, error)
}

// CreateInvoiceRequest holds validated input for invoice creation.
type CreateInvoiceRequest struct {
	ReceiverAddress string
	ReceiverName    *string
	Amount          string // human decimal in the invoice token
	Description     *string
	IdempotencyKey  string // optional; replays return the first invoice
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for payee registration.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
	WebhookURL  *string
}

// RegisterResponse holds the registration result shown once.
type RegisterResponse struct {
	AccountID     uuid.UUID
	WebhookSecret string // Plaintext, shown only at registration and rotation
}

// AccountService manages the authenticated payee's profile.
type AccountService interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateWebhookURL(ctx context.Context, id uuid.UUID, url *string) error
	RotateWebhookSecret(ctx context.Context, id uuid.UUID) (string, error)
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// WebhookService defines async webhook delivery.
type WebhookService interface {
	NotifyInvoicePaid(ctx context.Context, invoice *domain.Invoice) error
}
