package payments

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Reader lists payments.
type Reader interface {
	ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error)
}

// TxRepository exposes transactional payment operations.
type TxRepository interface {
	Reader
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads payments from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByInvoice returns payments of an invoice.
func (r *Repository) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	return listByInvoice(ctx, r.pool, companyID, invoiceID)
}

type txRepository struct {
	q querier
}

// NewTxRepository binds payment statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{q: tx}
}

const paymentColumns = `id, company_id, invoice_id, COALESCE(return_id, 0), amount, payment_date, payment_method,
	COALESCE(remarks, ''), COALESCE(created_by, 0), created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var method string
	err := row.Scan(&p.ID, &p.CompanyID, &p.InvoiceID, &p.ReturnID, &p.Amount, &p.Date, &method, &p.Remarks, &p.CreatedBy, &p.CreatedAt)
	p.Method = Method(method)
	return p, err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO payments (company_id, invoice_id, return_id, amount, payment_date, payment_method, remarks, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+paymentColumns,
		p.CompanyID, p.InvoiceID, db.NullInt(p.ReturnID), p.Amount, p.Date, string(p.Method), db.NullString(p.Remarks), db.NullInt(p.CreatedBy))
	return scanPayment(row)
}

func (r *txRepository) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	return listByInvoice(ctx, r.q, companyID, invoiceID)
}

func listByInvoice(ctx context.Context, q querier, companyID, invoiceID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE company_id = $1 AND invoice_id = $2
ORDER BY payment_date, id`, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
