package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// TxRepository exposes the return statements used inside a unit of work.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret Return) (Return, error)
	InsertItems(ctx context.Context, items []Item) ([]Item, error)
	GetReturnForUpdate(ctx context.Context, companyID, id int64) (Return, error)
	UpdateStatus(ctx context.Context, ret Return) (Return, error)
	ListItems(ctx context.Context, companyID, returnID int64) ([]Item, error)
	// ReturnedQuantities sums item quantities per product over the
	// non-rejected returns of an invoice.
	ReturnedQuantities(ctx context.Context, companyID, invoiceID int64) (map[int64]int64, error)
}

// Tx extends the invoice unit of work with return statements.
type Tx interface {
	invoices.Tx
	Returns() TxRepository
}

// Reader serves return queries outside a transaction.
type Reader interface {
	GetReturn(ctx context.Context, companyID, id int64) (Return, error)
	ListItems(ctx context.Context, companyID, returnID int64) ([]Item, error)
	ListReturns(ctx context.Context, filter ListFilter) (Page, error)
}

// Store is the persistence boundary of Workflow.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Repository persists returns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txScope{TxScope: invoices.NewTxScope(tx), returns: &txRepository{q: tx}})
	})
}

type txScope struct {
	*invoices.TxScope
	returns TxRepository
}

func (s *txScope) Returns() TxRepository { return s.returns }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	q pgx.Tx
}

const returnColumns = `id, company_id, invoice_id, zone_id, status, total_return_amount, payment_amount,
	COALESCE(reason, ''), COALESCE(created_by, 0), COALESCE(approved_by, 0), approved_at,
	COALESCE(rejected_by, 0), rejected_at, created_at, updated_at`

const returnItemColumns = `id, company_id, return_id, product_id, returned_quantity, unit_price, return_amount`

func scanReturn(row pgx.Row) (Return, error) {
	var ret Return
	var status string
	err := row.Scan(&ret.ID, &ret.CompanyID, &ret.InvoiceID, &ret.ZoneID, &status, &ret.TotalReturnAmount,
		&ret.PaymentAmount, &ret.Reason, &ret.CreatedBy, &ret.ApprovedBy, &ret.ApprovedAt,
		&ret.RejectedBy, &ret.RejectedAt, &ret.CreatedAt, &ret.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrReturnNotFound
	}
	ret.Status = Status(status)
	return ret, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.ReturnID, &it.ProductID, &it.ReturnedQuantity, &it.UnitPrice, &it.ReturnAmount)
	return it, err
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (Return, error) {
	return scanReturn(r.q.QueryRow(ctx, `INSERT INTO product_returns
	(company_id, invoice_id, zone_id, status, total_return_amount, payment_amount, reason, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+returnColumns,
		ret.CompanyID, ret.InvoiceID, ret.ZoneID, string(ret.Status), ret.TotalReturnAmount, ret.PaymentAmount,
		db.NullString(ret.Reason), db.NullInt(ret.CreatedBy)))
}

func (r *txRepository) InsertItems(ctx context.Context, items []Item) ([]Item, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO product_return_items
	(company_id, return_id, product_id, returned_quantity, unit_price, return_amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+returnItemColumns,
			it.CompanyID, it.ReturnID, it.ProductID, it.ReturnedQuantity, it.UnitPrice, it.ReturnAmount)
	}
	results := r.q.SendBatch(ctx, batch)
	defer results.Close()
	out := make([]Item, 0, len(items))
	for range items {
		it, err := scanItem(results.QueryRow())
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, results.Close()
}

func (r *txRepository) GetReturnForUpdate(ctx context.Context, companyID, id int64) (Return, error) {
	return scanReturn(r.q.QueryRow(ctx, `SELECT `+returnColumns+` FROM product_returns
WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id))
}

func (r *txRepository) UpdateStatus(ctx context.Context, ret Return) (Return, error) {
	return scanReturn(r.q.QueryRow(ctx, `UPDATE product_returns
SET status = $3, approved_by = $4, approved_at = $5, rejected_by = $6, rejected_at = $7, updated_at = NOW()
WHERE company_id = $1 AND id = $2
RETURNING `+returnColumns,
		ret.CompanyID, ret.ID, string(ret.Status), db.NullInt(ret.ApprovedBy), ret.ApprovedAt,
		db.NullInt(ret.RejectedBy), ret.RejectedAt))
}

func (r *txRepository) ListItems(ctx context.Context, companyID, returnID int64) ([]Item, error) {
	return listItems(ctx, r.q, companyID, returnID)
}

func (r *txRepository) ReturnedQuantities(ctx context.Context, companyID, invoiceID int64) (map[int64]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT i.product_id, SUM(i.returned_quantity)
FROM product_return_items i
JOIN product_returns r ON r.id = i.return_id AND r.company_id = i.company_id
WHERE r.company_id = $1 AND r.invoice_id = $2 AND r.status <> 'REJECTED'
GROUP BY i.product_id`, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

// GetReturn loads a return header.
func (r *Repository) GetReturn(ctx context.Context, companyID, id int64) (Return, error) {
	return scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM product_returns
WHERE company_id = $1 AND id = $2`, companyID, id))
}

// ListItems loads the items of a return.
func (r *Repository) ListItems(ctx context.Context, companyID, returnID int64) ([]Item, error) {
	return listItems(ctx, r.pool, companyID, returnID)
}

// ListReturns returns a page of returns, newest first.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) (Page, error) {
	where := []string{"company_id = $1"}
	args := []any{filter.CompanyID}
	if filter.InvoiceID != 0 {
		args = append(args, filter.InvoiceID)
		where = append(where, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	if filter.ZoneID != 0 {
		args = append(args, filter.ZoneID)
		where = append(where, fmt.Sprintf("zone_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var page Page
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_returns WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, err
	}
	args = append(args, filter.Page.Limit, filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM product_returns WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		returnColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, ret)
	}
	return page, rows.Err()
}

func listItems(ctx context.Context, q querier, companyID, returnID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+returnItemColumns+` FROM product_return_items
WHERE company_id = $1 AND return_id = $2 ORDER BY id`, companyID, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
