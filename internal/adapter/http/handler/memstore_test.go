package handler

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Account Repo ---

type memAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]domain.Account)}
}

func (r *memAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("duplicate username: %s", a.Username)
		}
	}
	r.accounts[a.ID] = *a
	return nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) UpdateWebhookURL(ctx context.Context, id uuid.UUID, url *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %s", id)
	}
	a.WebhookURL = url
	r.accounts[id] = a
	return nil
}

func (r *memAccountRepo) UpdateWebhookSecret(ctx context.Context, id uuid.UUID, secretEnc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %s", id)
	}
	a.WebhookSecretEnc = secretEnc
	r.accounts[id] = a
	return nil
}

// --- In-Memory Invoice Repo ---

type memInvoiceRepo struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]domain.Invoice
	order    []uuid.UUID
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]domain.Invoice)}
}

func (r *memInvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = *inv
	r.order = append(r.order, inv.ID)
	return nil
}

func (r *memInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

// GetByIDForUpdate relies on memTransactor serializing transactions.
func (r *memInvoiceRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *memInvoiceRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.invoices {
		if inv.TxHash != nil && *inv.TxHash == txHash {
			return &inv, nil
		}
	}
	return nil, nil
}

func (r *memInvoiceRepo) MarkPaid(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.invoices {
		if id != inv.ID && other.TxHash != nil && inv.TxHash != nil && *other.TxHash == *inv.TxHash {
			return ports.ErrTxHashTaken
		}
	}
	if _, ok := r.invoices[inv.ID]; !ok {
		return fmt.Errorf("invoice not found: %s", inv.ID)
	}
	r.invoices[inv.ID] = *inv
	return nil
}

func (r *memInvoiceRepo) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Invoice
	for i := len(r.order) - 1; i >= 0; i-- {
		inv := r.invoices[r.order[i]]
		if inv.OwnerID != params.OwnerID {
			continue
		}
		if params.Status != nil && inv.Status != *params.Status {
			continue
		}
		matched = append(matched, inv)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return []domain.Invoice{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memInvoiceRepo) Stats(ctx context.Context, ownerID uuid.UUID) (*domain.InvoiceStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.InvoiceStats{}
	volume := new(big.Int)
	for _, inv := range r.invoices {
		if inv.OwnerID != ownerID {
			continue
		}
		stats.Total++
		if !inv.IsPaid() {
			stats.Unpaid++
			continue
		}
		stats.Paid++
		if v, ok := new(big.Int).SetString(inv.AmountUnits, 10); ok {
			volume.Add(volume, v)
		}
	}
	stats.PaidVolumeUnits = volume.String()
	return stats, nil
}

// --- In-Memory Idempotency Repo ---

type memIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]domain.IdempotencyLog
}

func newMemIdempotencyRepo() *memIdempotencyRepo {
	return &memIdempotencyRepo{logs: make(map[string]domain.IdempotencyLog)}
}

func (r *memIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.Key]; ok {
		return ports.ErrIdempotencyKeyTaken
	}
	r.logs[log.Key] = *log
	return nil
}

func (r *memIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// --- In-Memory Transactor ---

// memTransactor runs one transaction at a time, standing in for row locks.
type memTransactor struct {
	mu sync.Mutex
}

func (t *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{done: sync.OnceFunc(t.mu.Unlock)}, nil
}

// memTx is a pgx.Tx whose Commit and Rollback only release the transactor.
type memTx struct {
	done func()
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Audit Repo ---

type memAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *memAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *log)
	return nil
}

func (r *memAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
