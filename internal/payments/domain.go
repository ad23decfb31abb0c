package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method enumerates supported payment methods.
type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
	MethodCheque   Method = "cheque"
	MethodCard     Method = "card"
)

// IsValid reports whether the method is known.
func (m Method) IsValid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCheque, MethodCard:
		return true
	default:
		return false
	}
}

// Payment is an immutable money receipt applied to an invoice.
type Payment struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	InvoiceID int64           `json:"invoice_id"`
	ReturnID  int64           `json:"return_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"payment_date"`
	Method    Method          `json:"payment_method"`
	Remarks   string          `json:"remarks,omitempty"`
	CreatedBy int64           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Spec is the input for recording a payment.
type Spec struct {
	CompanyID int64
	InvoiceID int64
	ReturnID  int64
	Amount    decimal.Decimal
	Date      time.Time
	Method    Method
	Remarks   string
	CreatedBy int64
}
