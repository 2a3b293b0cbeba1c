package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// amount_units is NUMERIC(78,0) so any uint256 fits; it is read back as text.
const invoiceColumns = `id, owner_id, status, receiver_address, receiver_name, chain_id,
		token_address, token_symbol, token_decimals, amount, amount_units::text,
		description, tx_hash, created_at, paid_at`

const uniqueViolation = "23505"

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

// NewInvoiceRepo creates a new InvoiceRepo.
func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// Create inserts a new invoice within a database transaction.
func (r *InvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	query := `INSERT INTO invoices (id, owner_id, status, receiver_address, receiver_name, chain_id,
		token_address, token_symbol, token_decimals, amount, amount_units, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12, $13)`

	_, err := tx.Exec(ctx, query,
		inv.ID, inv.OwnerID, inv.Status, inv.ReceiverAddress, inv.ReceiverName, inv.ChainID,
		inv.TokenAddress, inv.TokenSymbol, inv.TokenDecimals, inv.Amount, inv.AmountUnits,
		inv.Description, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID fetches an invoice by UUID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches and row-locks an invoice inside tx.
func (r *InvoiceRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return scanInvoice(tx.QueryRow(ctx, query, id))
}

// GetByTxHash fetches the invoice settled by txHash, if any.
func (r *InvoiceRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tx_hash = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, txHash))
}

// MarkPaid persists the PAID state. The status guard keeps a settled invoice
// from being overwritten.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	query := `UPDATE invoices SET status = $1, tx_hash = $2, paid_at = $3 WHERE id = $4 AND status = 'UNPAID'`

	tag, err := tx.Exec(ctx, query, inv.Status, inv.TxHash, inv.PaidAt, inv.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrTxHashTaken
		}
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice not unpaid: %s", inv.ID)
	}
	return nil
}

// List fetches an owner's invoices with filtering and pagination.
func (r *InvoiceRepo) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argIdx))
	args = append(args, params.OwnerID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	var total int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", where), args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []domain.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return invoices, total, nil
}

// Stats aggregates an owner's invoices.
func (r *InvoiceRepo) Stats(ctx context.Context, ownerID uuid.UUID) (*domain.InvoiceStats, error) {
	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'PAID') AS paid,
		COUNT(*) FILTER (WHERE status = 'UNPAID') AS unpaid,
		COALESCE(SUM(amount_units) FILTER (WHERE status = 'PAID'), 0)::text AS paid_volume_units
		FROM invoices WHERE owner_id = $1`

	stats := &domain.InvoiceStats{}
	err := r.pool.QueryRow(ctx, query, ownerID).Scan(&stats.Total, &stats.Paid, &stats.Unpaid, &stats.PaidVolumeUnits)
	if err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}
	return stats, nil
}

// scanInvoice returns nil, nil when no row matched.
func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.OwnerID, &inv.Status, &inv.ReceiverAddress, &inv.ReceiverName, &inv.ChainID,
		&inv.TokenAddress, &inv.TokenSymbol, &inv.TokenDecimals, &inv.Amount, &inv.AmountUnits,
		&inv.Description, &inv.TxHash, &inv.CreatedAt, &inv.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}
