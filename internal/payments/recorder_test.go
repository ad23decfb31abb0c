package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryTx struct {
	payments []Payment
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	p.ID = int64(len(tx.payments) + 1)
	tx.payments = append(tx.payments, p)
	return p, nil
}

func (tx *memoryTx) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range tx.payments {
		if p.CompanyID == companyID && p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestCreateAppliesDefaults(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &Recorder{now: func() time.Time { return fixed }}
	tx := &memoryTx{}

	p, err := rec.Create(context.Background(), tx, Spec{CompanyID: 1, InvoiceID: 5, Amount: decimal.RequireFromString("40.005")})
	require.NoError(t, err)
	require.Equal(t, MethodCash, p.Method)
	require.Equal(t, fixed, p.Date)
	require.Equal(t, "40.01", p.Amount.StringFixed(2))
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	rec := NewRecorder()
	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-3)} {
		_, err := rec.Create(context.Background(), &memoryTx{}, Spec{CompanyID: 1, InvoiceID: 5, Amount: amount})
		require.ErrorIs(t, err, shared.ErrValidation)
	}
	_, err := rec.Create(context.Background(), &memoryTx{}, Spec{CompanyID: 1, InvoiceID: 5, Amount: decimal.NewFromInt(1), Method: "barter"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListByInvoice(t *testing.T) {
	rec := NewRecorder()
	tx := &memoryTx{}
	ctx := context.Background()
	for _, invoiceID := range []int64{5, 5, 6} {
		_, err := rec.Create(ctx, tx, Spec{CompanyID: 1, InvoiceID: invoiceID, Amount: decimal.NewFromInt(10), Method: MethodTransfer})
		require.NoError(t, err)
	}
	out, err := rec.ListByInvoice(ctx, tx, 1, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)

	_, err = rec.ListByInvoice(ctx, tx, 1, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}
