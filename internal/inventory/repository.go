package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// TransactionReader lists ledger entries.
type TransactionReader interface {
	ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error)
}

// TxRepository exposes transactional operations used by Accessor and Recorder.
type TxRepository interface {
	TransactionReader
	GetStockForUpdate(ctx context.Context, companyID, productID, providerID int64) (Stock, error)
	ListStockByProductForUpdate(ctx context.Context, companyID, productID int64) ([]Stock, error)
	ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error)
	InsertStock(ctx context.Context, stock Stock) (Stock, error)
	UpdateStock(ctx context.Context, stock Stock) (Stock, error)
	InsertTransactions(ctx context.Context, entries []Transaction) ([]Transaction, error)
}

// ProductKey identifies a stocked product within a company.
type ProductKey struct {
	CompanyID int64 `json:"company_id"`
	ProductID int64 `json:"product_id"`
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	q querier
}

// NewTxRepository binds the inventory statements to an open transaction so
// other modules can compose them into their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{q: tx}
}

const stockColumns = `id, company_id, product_id, provider_id, quantity, unit_price, created_at, updated_at`

const transactionColumns = `id, company_id, product_id, transaction_type, quantity, unit_price,
	COALESCE(invoice_id, 0), COALESCE(return_id, 0), COALESCE(provider_id, 0), COALESCE(zone_id, 0),
	COALESCE(remarks, ''), COALESCE(created_by, 0), created_at`

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.CompanyID, &s.ProductID, &s.ProviderID, &s.Quantity, &s.UnitPrice, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var typ string
	err := row.Scan(&t.ID, &t.CompanyID, &t.ProductID, &typ, &t.Quantity, &t.UnitPrice,
		&t.InvoiceID, &t.ReturnID, &t.ProviderID, &t.ZoneID, &t.Remarks, &t.CreatedBy, &t.CreatedAt)
	t.Type = TransactionType(typ)
	return t, err
}

func collectStock(rows pgx.Rows) ([]Stock, error) {
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, companyID, productID, providerID int64) (Stock, error) {
	row := r.q.QueryRow(ctx, `SELECT `+stockColumns+` FROM inventory
WHERE company_id = $1 AND product_id = $2 AND provider_id = $3 AND deleted_at IS NULL
FOR UPDATE`, companyID, productID, providerID)
	stock, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return stock, err
}

func (r *txRepository) ListStockByProductForUpdate(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	rows, err := r.q.Query(ctx, `SELECT `+stockColumns+` FROM inventory
WHERE company_id = $1 AND product_id = $2 AND deleted_at IS NULL
ORDER BY id
FOR UPDATE`, companyID, productID)
	if err != nil {
		return nil, err
	}
	return collectStock(rows)
}

func (r *txRepository) ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	return listStockByProduct(ctx, r.q, companyID, productID)
}

// InsertStock creates the row; a concurrent creator that won the race turns
// this into an increment of the existing row, which keeps its unit price.
func (r *txRepository) InsertStock(ctx context.Context, stock Stock) (Stock, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO inventory (company_id, product_id, provider_id, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (company_id, product_id, provider_id) DO UPDATE
SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = NOW(), deleted_at = NULL
RETURNING `+stockColumns, stock.CompanyID, stock.ProductID, stock.ProviderID, stock.Quantity, stock.UnitPrice)
	return scanStock(row)
}

func (r *txRepository) UpdateStock(ctx context.Context, stock Stock) (Stock, error) {
	row := r.q.QueryRow(ctx, `UPDATE inventory SET quantity = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+stockColumns, stock.ID, stock.Quantity)
	updated, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return updated, err
}

func (r *txRepository) InsertTransactions(ctx context.Context, entries []Transaction) ([]Transaction, error) {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO inventory_transactions
(company_id, product_id, transaction_type, quantity, unit_price, invoice_id, return_id, provider_id, zone_id, remarks, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+transactionColumns,
			e.CompanyID, e.ProductID, string(e.Type), e.Quantity, e.UnitPrice,
			db.NullInt(e.InvoiceID), db.NullInt(e.ReturnID), db.NullInt(e.ProviderID), db.NullInt(e.ZoneID),
			db.NullString(e.Remarks), db.NullInt(e.CreatedBy))
	}
	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	out := make([]Transaction, 0, len(entries))
	for range entries {
		t, err := scanTransaction(results.QueryRow())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, results.Close()
}

func (r *txRepository) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	return listTransactions(ctx, r.q, filter)
}

// ListStock returns a page of stock rows.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter) (StockPage, error) {
	where := []string{"company_id = $1", "deleted_at IS NULL"}
	args := []any{filter.CompanyID}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.ProviderID != 0 {
		args = append(args, filter.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var page StockPage
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return StockPage{}, err
	}
	var limit any
	if filter.Page.Limit > 0 {
		limit = filter.Page.Limit
	}
	args = append(args, limit, filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM inventory WHERE %s ORDER BY product_id, id LIMIT $%d OFFSET $%d`,
		stockColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return StockPage{}, err
	}
	page.Items, err = collectStock(rows)
	return page, err
}

// ListStockByProduct returns every provider row of a product.
func (r *Repository) ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	return listStockByProduct(ctx, r.pool, companyID, productID)
}

// ListTransactions returns a page of ledger entries.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	return listTransactions(ctx, r.pool, filter)
}

// LedgerByProvider sums signed ledger quantity per provider for a product.
func (r *Repository) LedgerByProvider(ctx context.Context, companyID, productID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(provider_id, 0), COALESCE(SUM(quantity), 0)
FROM inventory_transactions
WHERE company_id = $1 AND product_id = $2
GROUP BY COALESCE(provider_id, 0)`, companyID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var providerID, qty int64
		if err := rows.Scan(&providerID, &qty); err != nil {
			return nil, err
		}
		out[providerID] = qty
	}
	return out, rows.Err()
}

// ListStockedProducts returns distinct products with stock rows or ledger
// entries. A zero companyID lists every company.
func (r *Repository) ListStockedProducts(ctx context.Context, companyID int64) ([]ProductKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT company_id, product_id FROM inventory WHERE ($1::bigint = 0 OR company_id = $1)
UNION
SELECT company_id, product_id FROM inventory_transactions WHERE ($1::bigint = 0 OR company_id = $1)
ORDER BY 1, 2`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductKey
	for rows.Next() {
		var k ProductKey
		if err := rows.Scan(&k.CompanyID, &k.ProductID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func listStockByProduct(ctx context.Context, q querier, companyID, productID int64) ([]Stock, error) {
	rows, err := q.Query(ctx, `SELECT `+stockColumns+` FROM inventory
WHERE company_id = $1 AND product_id = $2 AND deleted_at IS NULL
ORDER BY id`, companyID, productID)
	if err != nil {
		return nil, err
	}
	return collectStock(rows)
}

func listTransactions(ctx context.Context, q querier, filter TransactionFilter) (TransactionPage, error) {
	where := []string{"company_id = $1"}
	args := []any{filter.CompanyID}
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.InvoiceID != 0 {
		add("invoice_id", filter.InvoiceID)
	}
	if filter.ReturnID != 0 {
		add("return_id", filter.ReturnID)
	}
	if filter.ProductID != 0 {
		add("product_id", filter.ProductID)
	}
	if filter.ProviderID != 0 {
		add("provider_id", filter.ProviderID)
	}
	if filter.Type != "" {
		add("transaction_type", string(filter.Type))
	}
	clause := strings.Join(where, " AND ")

	var page TransactionPage
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transactions WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return TransactionPage{}, err
	}
	// A zero limit lists every entry; internal readers rely on that.
	var limit any
	if filter.Page.Limit > 0 {
		limit = filter.Page.Limit
	}
	args = append(args, limit, filter.Page.Offset())
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM inventory_transactions WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		transactionColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return TransactionPage{}, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return TransactionPage{}, err
		}
		page.Items = append(page.Items, t)
	}
	return page, rows.Err()
}
