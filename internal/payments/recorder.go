package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Recorder appends payments. Balance checks belong to the invoice engine.
type Recorder struct {
	now func() time.Time
}

// NewRecorder builds Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Create validates the spec, applies defaults and appends the payment.
func (r *Recorder) Create(ctx context.Context, tx TxRepository, spec Spec) (Payment, error) {
	if spec.CompanyID == 0 || spec.InvoiceID == 0 {
		return Payment{}, shared.Validationf("payments: company and invoice required")
	}
	if !spec.Amount.IsPositive() {
		return Payment{}, shared.Validationf("payments: amount must be greater than zero")
	}
	if spec.Method == "" {
		spec.Method = MethodCash
	}
	if !spec.Method.IsValid() {
		return Payment{}, shared.Validationf("payments: unknown method %q", spec.Method)
	}
	if spec.Date.IsZero() {
		spec.Date = r.now()
	}
	p, err := tx.InsertPayment(ctx, Payment{
		CompanyID: spec.CompanyID,
		InvoiceID: spec.InvoiceID,
		ReturnID:  spec.ReturnID,
		Amount:    spec.Amount.Round(2),
		Date:      spec.Date,
		Method:    spec.Method,
		Remarks:   spec.Remarks,
		CreatedBy: spec.CreatedBy,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("payments: insert: %w", err)
	}
	return p, nil
}

// ListByInvoice returns every payment applied to an invoice, oldest first.
func (r *Recorder) ListByInvoice(ctx context.Context, reader Reader, companyID, invoiceID int64) ([]Payment, error) {
	if invoiceID == 0 {
		return nil, shared.Validationf("payments: invoice required")
	}
	out, err := reader.ListByInvoice(ctx, companyID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	return out, nil
}
