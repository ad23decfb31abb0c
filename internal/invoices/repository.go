package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/payments"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// TxRepository exposes transactional invoice operations.
type TxRepository interface {
	NextNumber(ctx context.Context) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, companyID, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertItems(ctx context.Context, items []Item) ([]Item, error)
	GetItem(ctx context.Context, companyID, invoiceID, itemID int64) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, companyID, invoiceID, itemID int64) error
	ListItems(ctx context.Context, companyID, invoiceID int64) ([]Item, error)
	InsertBills(ctx context.Context, bills []Bill) ([]Bill, error)
	ListBills(ctx context.Context, companyID, invoiceID int64) ([]Bill, error)
}

// Tx is the unit of work an engine operation runs in. Every repository it
// hands out shares the same underlying transaction.
type Tx interface {
	Invoices() TxRepository
	Inventory() inventory.TxRepository
	Payments() payments.TxRepository
}

// Reader serves read paths outside a transaction.
type Reader interface {
	payments.Reader
	GetInvoice(ctx context.Context, companyID, id int64) (Invoice, error)
	ListItems(ctx context.Context, companyID, invoiceID int64) ([]Item, error)
	ListBills(ctx context.Context, companyID, invoiceID int64) ([]Bill, error)
	ListInvoices(ctx context.Context, filter ListFilter) (Page, error)
}

// Store opens units of work.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	payments *payments.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, payments: payments.NewRepository(pool)}
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxScope(tx))
	})
}

// TxScope binds invoice, inventory and payment statements to one transaction.
type TxScope struct {
	invoices  TxRepository
	inventory inventory.TxRepository
	payments  payments.TxRepository
}

// NewTxScope builds the unit of work for an open transaction.
func NewTxScope(tx pgx.Tx) *TxScope {
	return &TxScope{
		invoices:  &txRepository{q: tx},
		inventory: inventory.NewTxRepository(tx),
		payments:  payments.NewTxRepository(tx),
	}
}

// Invoices implements Tx.
func (s *TxScope) Invoices() TxRepository { return s.invoices }

// Inventory implements Tx.
func (s *TxScope) Inventory() inventory.TxRepository { return s.inventory }

// Payments implements Tx.
func (s *TxScope) Payments() payments.TxRepository { return s.payments }

type txRepository struct {
	q pgx.Tx
}

const invoiceColumns = `id, company_id, type, COALESCE(to_provider_id, 0), COALESCE(to_zone_id, 0), invoice_number,
	invoice_date, total_amount, paid_amount, due_amount, COALESCE(discount_type, ''), discount_value,
	COALESCE(remarks, ''), COALESCE(created_by, 0), created_at, updated_at`

const itemColumns = `id, company_id, invoice_id, product_id, COALESCE(provider_id, 0), quantity, unit_price, discount_percent, line_total`

const billColumns = `id, company_id, invoice_id, title, COALESCE(description, ''), amount`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var typ, discount string
	err := row.Scan(&inv.ID, &inv.CompanyID, &typ, &inv.ToProviderID, &inv.ToZoneID, &inv.Number,
		&inv.Date, &inv.TotalAmount, &inv.PaidAmount, &inv.DueAmount, &discount, &inv.DiscountValue,
		&inv.Remarks, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.Type = Type(typ)
	inv.DiscountType = DiscountType(discount)
	return inv, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.InvoiceID, &it.ProductID, &it.ProviderID, &it.Quantity,
		&it.UnitPrice, &it.DiscountPercent, &it.LineTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.CompanyID, &b.InvoiceID, &b.Title, &b.Description, &b.Amount)
	return b, err
}

func (r *txRepository) NextNumber(ctx context.Context) (int64, error) {
	var seq int64
	err := r.q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO invoices
(company_id, type, to_provider_id, to_zone_id, invoice_number, invoice_date, total_amount, paid_amount, due_amount,
 discount_type, discount_value, remarks, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+invoiceColumns,
		inv.CompanyID, string(inv.Type), db.NullInt(inv.ToProviderID), db.NullInt(inv.ToZoneID), inv.Number, inv.Date,
		inv.TotalAmount, inv.PaidAmount, inv.DueAmount, db.NullString(string(inv.DiscountType)), inv.DiscountValue,
		db.NullString(inv.Remarks), db.NullInt(inv.CreatedBy))
	return scanInvoice(row)
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, companyID, id int64) (Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL
FOR UPDATE`, companyID, id)
	return scanInvoice(row)
}

func (r *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.q.QueryRow(ctx, `UPDATE invoices
SET total_amount = $3, paid_amount = $4, due_amount = $5, discount_type = $6, discount_value = $7, updated_at = NOW()
WHERE company_id = $1 AND id = $2
RETURNING `+invoiceColumns,
		inv.CompanyID, inv.ID, inv.TotalAmount, inv.PaidAmount, inv.DueAmount,
		db.NullString(string(inv.DiscountType)), inv.DiscountValue)
	return scanInvoice(row)
}

func (r *txRepository) InsertItems(ctx context.Context, items []Item) ([]Item, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO invoice_items
(company_id, invoice_id, product_id, provider_id, quantity, unit_price, discount_percent, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+itemColumns,
			it.CompanyID, it.InvoiceID, it.ProductID, db.NullInt(it.ProviderID), it.Quantity,
			it.UnitPrice, it.DiscountPercent, it.LineTotal)
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

func (r *txRepository) GetItem(ctx context.Context, companyID, invoiceID, itemID int64) (Item, error) {
	row := r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM invoice_items
WHERE company_id = $1 AND invoice_id = $2 AND id = $3`, companyID, invoiceID, itemID)
	return scanItem(row)
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) (Item, error) {
	row := r.q.QueryRow(ctx, `UPDATE invoice_items
SET product_id = $4, provider_id = $5, quantity = $6, unit_price = $7, discount_percent = $8, line_total = $9
WHERE company_id = $1 AND invoice_id = $2 AND id = $3
RETURNING `+itemColumns,
		item.CompanyID, item.InvoiceID, item.ID, item.ProductID, db.NullInt(item.ProviderID), item.Quantity,
		item.UnitPrice, item.DiscountPercent, item.LineTotal)
	return scanItem(row)
}

func (r *txRepository) DeleteItem(ctx context.Context, companyID, invoiceID, itemID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM invoice_items WHERE company_id = $1 AND invoice_id = $2 AND id = $3`,
		companyID, invoiceID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) ListItems(ctx context.Context, companyID, invoiceID int64) ([]Item, error) {
	return listItems(ctx, r.q, companyID, invoiceID)
}

func (r *txRepository) InsertBills(ctx context.Context, bills []Bill) ([]Bill, error) {
	batch := &pgx.Batch{}
	for _, b := range bills {
		batch.Queue(`INSERT INTO invoice_bills (company_id, invoice_id, title, description, amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+billColumns, b.CompanyID, b.InvoiceID, b.Title, db.NullString(b.Description), b.Amount)
	}
	results := r.q.SendBatch(ctx, batch)
	defer results.Close()
	out := make([]Bill, 0, len(bills))
	for range bills {
		b, err := scanBill(results.QueryRow())
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, results.Close()
}

func (r *txRepository) ListBills(ctx context.Context, companyID, invoiceID int64) ([]Bill, error) {
	return listBills(ctx, r.q, companyID, invoiceID)
}

// GetInvoice loads an invoice header.
func (r *Repository) GetInvoice(ctx context.Context, companyID, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL`, companyID, id)
	return scanInvoice(row)
}

// ListItems returns invoice lines.
func (r *Repository) ListItems(ctx context.Context, companyID, invoiceID int64) ([]Item, error) {
	return listItems(ctx, r.pool, companyID, invoiceID)
}

// ListBills returns invoice bills.
func (r *Repository) ListBills(ctx context.Context, companyID, invoiceID int64) ([]Bill, error) {
	return listBills(ctx, r.pool, companyID, invoiceID)
}

// ListByInvoice returns invoice payments.
func (r *Repository) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]payments.Payment, error) {
	return r.payments.ListByInvoice(ctx, companyID, invoiceID)
}

// ListInvoices returns a page of invoice headers, newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) (Page, error) {
	where := []string{"company_id = $1", "deleted_at IS NULL"}
	args := []any{filter.CompanyID}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.ToProviderID != 0 {
		args = append(args, filter.ToProviderID)
		where = append(where, fmt.Sprintf("to_provider_id = $%d", len(args)))
	}
	if filter.ToZoneID != 0 {
		args = append(args, filter.ToZoneID)
		where = append(where, fmt.Sprintf("to_zone_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var page Page
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, err
	}
	args = append(args, filter.Page.Limit, filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, inv)
	}
	return page, rows.Err()
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q rowsQuerier, companyID, invoiceID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM invoice_items
WHERE company_id = $1 AND invoice_id = $2 ORDER BY id`, companyID, invoiceID)
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

func listBills(ctx context.Context, q rowsQuerier, companyID, invoiceID int64) ([]Bill, error) {
	rows, err := q.Query(ctx, `SELECT `+billColumns+` FROM invoice_bills
WHERE company_id = $1 AND invoice_id = $2 ORDER BY id`, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
