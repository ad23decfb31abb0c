package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TransactionType enumerates ledger movement causes.
type TransactionType string

const (
	// TransactionTypePurchase is stock received from a provider.
	TransactionTypePurchase TransactionType = "PURCHASE"
	// TransactionTypeDistribution is stock sent to a zone.
	TransactionTypeDistribution TransactionType = "DISTRIBUTION"
	// TransactionTypeReturn is stock coming back from a zone.
	TransactionTypeReturn TransactionType = "RETURN"
)

// IsValid reports whether the type is known.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeDistribution, TransactionTypeReturn:
		return true
	default:
		return false
	}
}

// SignedQuantity applies the ledger sign convention: PURCHASE and RETURN add
// stock, DISTRIBUTION removes it.
func SignedQuantity(t TransactionType, qty int64) int64 {
	if qty < 0 {
		qty = -qty
	}
	if t == TransactionTypeDistribution {
		return -qty
	}
	return qty
}

// Stock is the on-hand row for a (product, provider, company) triple.
type Stock struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	ProductID  int64           `json:"product_id"`
	ProviderID int64           `json:"provider_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	ProductID  int64           `json:"product_id"`
	Type       TransactionType `json:"transaction_type"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	InvoiceID  int64           `json:"invoice_id,omitempty"`
	ReturnID   int64           `json:"return_id,omitempty"`
	ProviderID int64           `json:"provider_id,omitempty"`
	ZoneID     int64           `json:"zone_id,omitempty"`
	Remarks    string          `json:"remarks,omitempty"`
	CreatedBy  int64           `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Movement describes a stock change requested from the Accessor.
type Movement struct {
	CompanyID  int64
	ProductID  int64
	ProviderID int64
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// Draw is the portion of a movement taken from one provider row.
type Draw struct {
	Stock    Stock
	Quantity int64
}

// StockFilter filters stock listings.
type StockFilter struct {
	CompanyID  int64
	ProductID  int64
	ProviderID int64
	Page       shared.PageRequest
}

// TransactionFilter filters ledger listings.
type TransactionFilter struct {
	CompanyID  int64
	InvoiceID  int64
	ReturnID   int64
	ProductID  int64
	ProviderID int64
	Type       TransactionType
	Page       shared.PageRequest
}

// HasReference reports whether at least one entity reference is set.
func (f TransactionFilter) HasReference() bool {
	return f.InvoiceID != 0 || f.ReturnID != 0 || f.ProductID != 0
}

// StockPage is one page of stock rows.
type StockPage struct {
	Items []Stock
	Total int
}

// TransactionPage is one page of ledger entries.
type TransactionPage struct {
	Items []Transaction
	Total int
}

// ProviderBalance compares ledger and stock for one provider of a product.
type ProviderBalance struct {
	ProviderID     int64 `json:"provider_id"`
	StockQuantity  int64 `json:"stock_quantity"`
	LedgerQuantity int64 `json:"ledger_quantity"`
}

// Reconciliation is the audit result for one product.
type Reconciliation struct {
	CompanyID      int64             `json:"company_id"`
	ProductID      int64             `json:"product_id"`
	StockQuantity  int64             `json:"stock_quantity"`
	LedgerQuantity int64             `json:"ledger_quantity"`
	Providers      []ProviderBalance `json:"providers"`
	Balanced       bool              `json:"balanced"`
}

// ShortageError is returned when a decrement exceeds on-hand stock.
type ShortageError struct {
	ProductID  int64
	ProviderID int64
	Requested  int64
	Available  int64
}

func (e *ShortageError) Error() string {
	if e.ProviderID != 0 {
		return fmt.Sprintf("Insufficient inventory for product %d from provider %d: requested %d, available %d, short by %d",
			e.ProductID, e.ProviderID, e.Requested, e.Available, e.Shortfall())
	}
	return fmt.Sprintf("Insufficient inventory for product %d: requested %d, available %d, short by %d",
		e.ProductID, e.Requested, e.Available, e.Shortfall())
}

// Shortfall is the missing quantity.
func (e *ShortageError) Shortfall() int64 {
	return e.Requested - e.Available
}

// Unwrap exposes the shared error kind.
func (e *ShortageError) Unwrap() error {
	return shared.ErrInsufficientInventory
}

// ErrStockNotFound indicates a missing stock row.
var ErrStockNotFound = errors.New("inventory: stock row not found")

// ErrInvalidQuantity indicates a non-positive movement quantity.
var ErrInvalidQuantity = fmt.Errorf("%w: inventory quantity must be positive", shared.ErrValidation)

// ErrInvalidUnitPrice indicates a negative unit price.
var ErrInvalidUnitPrice = fmt.Errorf("%w: inventory unit price must be >= 0", shared.ErrValidation)
