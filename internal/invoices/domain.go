package invoices

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/payments"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Type enumerates invoice recipients.
type Type string

const (
	// TypeProvider bills a provider for stock purchased from it.
	TypeProvider Type = "PROVIDER"
	// TypeZone bills a zone for stock distributed to it.
	TypeZone Type = "ZONE"
	// TypeCompany is an internal bill with no inventory effect.
	TypeCompany Type = "COMPANY"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeProvider, TypeZone, TypeCompany:
		return true
	default:
		return false
	}
}

// DiscountType enumerates invoice-level discount modes.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountAmount     DiscountType = "amount"
)

// Invoice is the invoice header. PaidAmount + DueAmount always equals TotalAmount.
type Invoice struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Type          Type            `json:"type"`
	ToProviderID  int64           `json:"to_provider_id,omitempty"`
	ToZoneID      int64           `json:"to_zone_id,omitempty"`
	Number        string          `json:"invoice_number"`
	Date          time.Time       `json:"invoice_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	DiscountType  DiscountType    `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Remarks       string          `json:"remarks,omitempty"`
	CreatedBy     int64           `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CheckBalance verifies the paid/due/total relation before a balance write.
func (inv Invoice) CheckBalance() error {
	if inv.PaidAmount.IsNegative() || inv.DueAmount.IsNegative() {
		return fmt.Errorf("%w: invoice %s has paid %s and due %s",
			shared.ErrInconsistentTotals, inv.Number, inv.PaidAmount.StringFixed(2), inv.DueAmount.StringFixed(2))
	}
	if !inv.PaidAmount.Add(inv.DueAmount).Equal(inv.TotalAmount) {
		return fmt.Errorf("%w: invoice %s paid %s + due %s != total %s",
			shared.ErrInconsistentTotals, inv.Number,
			inv.PaidAmount.StringFixed(2), inv.DueAmount.StringFixed(2), inv.TotalAmount.StringFixed(2))
	}
	return nil
}

// CheckRecipient verifies that exactly the recipient field matching the type is set.
func CheckRecipient(t Type, toProviderID, toZoneID int64) error {
	switch t {
	case TypeProvider:
		if toProviderID == 0 || toZoneID != 0 {
			return fmt.Errorf("%w: PROVIDER invoice requires to_provider_id only", shared.ErrInvalidRecipient)
		}
	case TypeZone:
		if toZoneID == 0 || toProviderID != 0 {
			return fmt.Errorf("%w: ZONE invoice requires to_zone_id only", shared.ErrInvalidRecipient)
		}
	case TypeCompany:
		if toProviderID != 0 || toZoneID != 0 {
			return fmt.Errorf("%w: COMPANY invoice takes no recipient", shared.ErrInvalidRecipient)
		}
	default:
		return fmt.Errorf("%w: unknown invoice type %q", shared.ErrInvalidRecipient, t)
	}
	return nil
}

// Item is an invoice line.
type Item struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	InvoiceID       int64           `json:"invoice_id"`
	ProductID       int64           `json:"product_id"`
	ProviderID      int64           `json:"provider_id,omitempty"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Bill is a free-form invoice charge.
type Bill struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	InvoiceID   int64           `json:"invoice_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// Detail is an invoice with its lines, bills and payments.
type Detail struct {
	Invoice
	Items    []Item             `json:"items"`
	Bills    []Bill             `json:"bills"`
	Payments []payments.Payment `json:"payments"`
}

// ItemSpec describes one line of a new or edited invoice.
type ItemSpec struct {
	ProductID       int64
	ProviderID      int64
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// BillSpec describes one bill of a new invoice.
type BillSpec struct {
	Title       string
	Description string
	Amount      decimal.Decimal
}

// CreateSpec is the input for CreateInvoice.
type CreateSpec struct {
	Type          Type
	ToProviderID  int64
	ToZoneID      int64
	Date          time.Time
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Remarks       string
	Items         []ItemSpec
	Bills         []BillSpec
}

// DiscountSpec is the input for UpdateDiscount. An empty type clears the discount.
type DiscountSpec struct {
	Type  DiscountType
	Value decimal.Decimal
}

// PaymentSpec is the input for RecordPayment.
type PaymentSpec struct {
	Amount   decimal.Decimal
	Date     time.Time
	Method   payments.Method
	Remarks  string
	ReturnID int64
}

// ListFilter filters invoice listings.
type ListFilter struct {
	CompanyID    int64
	Type         Type
	ToProviderID int64
	ToZoneID     int64
	Page         shared.PageRequest
}

// Page is one page of invoices.
type Page struct {
	Items []Invoice
	Total int
}

// ErrInvoiceNotFound indicates a missing invoice.
var ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)

// ErrItemNotFound indicates a missing invoice item.
var ErrItemNotFound = fmt.Errorf("%w: invoice item", shared.ErrNotFound)

func validateItemSpec(i int, spec ItemSpec) error {
	if spec.ProductID == 0 {
		return shared.Validationf("invoices: item %d requires product", i+1)
	}
	if spec.Quantity < 1 {
		return shared.Validationf("invoices: item %d quantity must be >= 1", i+1)
	}
	if spec.UnitPrice.IsNegative() {
		return shared.Validationf("invoices: item %d unit price must be >= 0", i+1)
	}
	if spec.DiscountPercent.IsNegative() || spec.DiscountPercent.GreaterThan(hundred) {
		return shared.Validationf("invoices: item %d discount percent must be within [0,100]", i+1)
	}
	return nil
}

func validateBillSpec(i int, spec BillSpec) error {
	if spec.Title == "" {
		return shared.Validationf("invoices: bill %d requires title", i+1)
	}
	if spec.Amount.IsNegative() {
		return shared.Validationf("invoices: bill %d amount must be >= 0", i+1)
	}
	return nil
}

func validateDiscount(t DiscountType, value decimal.Decimal) error {
	switch t {
	case "":
		return nil
	case DiscountPercentage:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return shared.Validationf("invoices: percentage discount must be within [0,100]")
		}
	case DiscountAmount:
		if value.IsNegative() {
			return shared.Validationf("invoices: discount amount must be >= 0")
		}
	default:
		return shared.Validationf("invoices: unknown discount type %q", t)
	}
	return nil
}
