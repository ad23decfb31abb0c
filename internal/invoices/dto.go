package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/payments"
)

// CreateInvoiceRequest is the body of POST /invoices.
type CreateInvoiceRequest struct {
	Type          string          `json:"type" validate:"required,oneof=PROVIDER ZONE COMPANY"`
	ToProviderID  int64           `json:"to_provider_id" validate:"gte=0"`
	ToZoneID      int64           `json:"to_zone_id" validate:"gte=0"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=percentage amount"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Remarks       string          `json:"remarks" validate:"max=500"`
	Items         []ItemRequest   `json:"items" validate:"omitempty,dive"`
	Bills         []BillRequest   `json:"bills" validate:"omitempty,dive"`
}

// ItemRequest describes one invoice line.
type ItemRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	ProviderID      int64           `json:"provider_id" validate:"gte=0"`
	Quantity        int64           `json:"quantity" validate:"required,gte=1"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// BillRequest describes one invoice bill.
type BillRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
}

// DiscountRequest is the body of PUT /invoices/{id}/discount.
type DiscountRequest struct {
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=percentage amount"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// PaymentRequest is the body of POST /invoices/{id}/payments.
type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	Method      string          `json:"payment_method" validate:"omitempty,oneof=cash transfer cheque card"`
	Remarks     string          `json:"remarks" validate:"max=500"`
}

func (r CreateInvoiceRequest) spec() CreateSpec {
	spec := CreateSpec{
		Type:          Type(r.Type),
		ToProviderID:  r.ToProviderID,
		ToZoneID:      r.ToZoneID,
		DiscountType:  DiscountType(r.DiscountType),
		DiscountValue: r.DiscountValue,
		Remarks:       r.Remarks,
	}
	if r.InvoiceDate != nil {
		spec.Date = *r.InvoiceDate
	}
	for _, it := range r.Items {
		spec.Items = append(spec.Items, it.spec())
	}
	for _, b := range r.Bills {
		spec.Bills = append(spec.Bills, BillSpec{Title: b.Title, Description: b.Description, Amount: b.Amount})
	}
	return spec
}

func (r ItemRequest) spec() ItemSpec {
	return ItemSpec{
		ProductID:       r.ProductID,
		ProviderID:      r.ProviderID,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
		DiscountPercent: r.DiscountPercent,
	}
}

func (r PaymentRequest) spec() PaymentSpec {
	spec := PaymentSpec{Amount: r.Amount, Method: payments.Method(r.Method), Remarks: r.Remarks}
	if r.PaymentDate != nil {
		spec.Date = *r.PaymentDate
	}
	return spec
}
