package inventory

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Recorder appends ledger entries. It never checks stock levels so the trail
// can carry corrective entries.
type Recorder struct{}

// NewRecorder builds Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends a single entry.
func (r *Recorder) Record(ctx context.Context, tx TxRepository, entry Transaction) (Transaction, error) {
	out, err := r.RecordBulk(ctx, tx, []Transaction{entry})
	if err != nil {
		return Transaction{}, err
	}
	return out[0], nil
}

// RecordBulk appends entries in one batched statement.
func (r *Recorder) RecordBulk(ctx context.Context, tx TxRepository, entries []Transaction) ([]Transaction, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i, e := range entries {
		if !e.Type.IsValid() {
			return nil, shared.Validationf("inventory: entry %d has unknown type %q", i+1, e.Type)
		}
		if e.Quantity == 0 {
			return nil, shared.Validationf("inventory: entry %d has zero quantity", i+1)
		}
		if e.CompanyID == 0 || e.ProductID == 0 {
			return nil, shared.Validationf("inventory: entry %d requires company and product", i+1)
		}
	}
	out, err := tx.InsertTransactions(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("inventory: insert transactions: %w", err)
	}
	return out, nil
}

// FindBy lists entries for an invoice, return or product.
func (r *Recorder) FindBy(ctx context.Context, reader TransactionReader, filter TransactionFilter) (TransactionPage, error) {
	if !filter.HasReference() {
		return TransactionPage{}, shared.Validationf("inventory: invoice, return or product filter required")
	}
	return reader.ListTransactions(ctx, filter)
}
