package returns

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status enumerates return lifecycle states.
type Status string

const (
	// StatusPending is the initial state.
	StatusPending Status = "PENDING"
	// StatusApproved is terminal; stock has been restored.
	StatusApproved Status = "APPROVED"
	// StatusRejected is terminal with no side effects.
	StatusRejected Status = "REJECTED"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CanApprove reports whether approval is allowed.
func (s Status) CanApprove() bool {
	return s == StatusPending
}

// CanReject reports whether rejection is allowed.
func (s Status) CanReject() bool {
	return s == StatusPending
}

// Return is a product return against a ZONE invoice.
type Return struct {
	ID                int64               `json:"id"`
	CompanyID         int64               `json:"company_id"`
	InvoiceID         int64               `json:"invoice_id"`
	ZoneID            int64               `json:"zone_id"`
	Status            Status              `json:"status"`
	TotalReturnAmount decimal.Decimal     `json:"total_return_amount"`
	PaymentAmount     decimal.NullDecimal `json:"payment_amount"`
	Reason            string              `json:"reason,omitempty"`
	CreatedBy         int64               `json:"created_by,omitempty"`
	ApprovedBy        int64               `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time          `json:"approved_at,omitempty"`
	RejectedBy        int64               `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time          `json:"rejected_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Item is one returned product line.
type Item struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	ReturnID         int64           `json:"return_id"`
	ProductID        int64           `json:"product_id"`
	ReturnedQuantity int64           `json:"returned_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReturnAmount     decimal.Decimal `json:"return_amount"`
}

// Detail is a return with its items.
type Detail struct {
	Return
	Items []Item `json:"items"`
}

// ItemSpec describes one line of a new return.
type ItemSpec struct {
	ProductID        int64
	ReturnedQuantity int64
	UnitPrice        decimal.Decimal
	ReturnAmount     decimal.Decimal
}

// CreateSpec is the input for CreateReturn.
type CreateSpec struct {
	InvoiceID         int64
	ZoneID            int64
	TotalReturnAmount decimal.Decimal
	PaymentAmount     decimal.NullDecimal
	Reason            string
	Items             []ItemSpec
}

// ListFilter filters return listings.
type ListFilter struct {
	CompanyID int64
	InvoiceID int64
	ZoneID    int64
	Status    Status
	Page      shared.PageRequest
}

// Page is one page of returns.
type Page struct {
	Items []Return
	Total int
}

// ErrReturnNotFound indicates a missing return.
var ErrReturnNotFound = fmt.Errorf("%w: product return", shared.ErrNotFound)

func validateCreate(spec CreateSpec) error {
	if spec.InvoiceID == 0 {
		return shared.Validationf("returns: invoice required")
	}
	if len(spec.Items) == 0 {
		return shared.Validationf("returns: at least one item required")
	}
	if spec.TotalReturnAmount.IsNegative() {
		return shared.Validationf("returns: total return amount must be >= 0")
	}
	sum := decimal.Zero
	for i, it := range spec.Items {
		if it.ProductID == 0 {
			return shared.Validationf("returns: item %d requires product", i+1)
		}
		if it.ReturnedQuantity < 1 {
			return shared.Validationf("returns: item %d returned quantity must be >= 1", i+1)
		}
		if it.UnitPrice.IsNegative() || it.ReturnAmount.IsNegative() {
			return shared.Validationf("returns: item %d amounts must be >= 0", i+1)
		}
		sum = sum.Add(it.ReturnAmount)
	}
	if !sum.Equal(spec.TotalReturnAmount) {
		return shared.Validationf("returns: total return amount %s does not match item sum %s",
			spec.TotalReturnAmount.StringFixed(2), sum.StringFixed(2))
	}
	if spec.PaymentAmount.Valid && !spec.PaymentAmount.Decimal.IsPositive() {
		return shared.Validationf("returns: payment amount must be greater than zero")
	}
	return nil
}
