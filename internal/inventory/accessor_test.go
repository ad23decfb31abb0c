package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryTx struct {
	stocks  []Stock
	entries []Transaction
	nextID  int64
	failOn  string
}

func key(companyID, productID, providerID int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, productID, providerID)
}

func (tx *memoryTx) find(companyID, productID, providerID int64) int {
	for i, s := range tx.stocks {
		if key(s.CompanyID, s.ProductID, s.ProviderID) == key(companyID, productID, providerID) {
			return i
		}
	}
	return -1
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, companyID, productID, providerID int64) (Stock, error) {
	if i := tx.find(companyID, productID, providerID); i >= 0 {
		return tx.stocks[i], nil
	}
	return Stock{}, ErrStockNotFound
}

func (tx *memoryTx) ListStockByProductForUpdate(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	return tx.ListStockByProduct(ctx, companyID, productID)
}

func (tx *memoryTx) ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	var out []Stock
	for _, s := range tx.stocks {
		if s.CompanyID == companyID && s.ProductID == productID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertStock(ctx context.Context, stock Stock) (Stock, error) {
	tx.nextID++
	stock.ID = tx.nextID
	tx.stocks = append(tx.stocks, stock)
	return stock, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, stock Stock) (Stock, error) {
	if tx.failOn == "update" {
		return Stock{}, errors.New("boom")
	}
	for i := range tx.stocks {
		if tx.stocks[i].ID == stock.ID {
			tx.stocks[i] = stock
			return stock, nil
		}
	}
	return Stock{}, ErrStockNotFound
}

func (tx *memoryTx) InsertTransactions(ctx context.Context, entries []Transaction) ([]Transaction, error) {
	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		tx.nextID++
		e.ID = tx.nextID
		tx.entries = append(tx.entries, e)
		out = append(out, e)
	}
	return out, nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	var page TransactionPage
	for _, e := range tx.entries {
		if filter.InvoiceID != 0 && e.InvoiceID != filter.InvoiceID {
			continue
		}
		if filter.ProductID != 0 && e.ProductID != filter.ProductID {
			continue
		}
		page.Items = append(page.Items, e)
	}
	page.Total = len(page.Items)
	return page, nil
}

func TestIncreaseCreatesThenAccumulates(t *testing.T) {
	tx := &memoryTx{}
	acc := NewAccessor()
	ctx := context.Background()

	stock, err := acc.Increase(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 5, UnitPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.EqualValues(t, 5, stock.Quantity)
	require.True(t, decimal.NewFromInt(100).Equal(stock.UnitPrice))

	stock, err = acc.Increase(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 7, UnitPrice: decimal.NewFromInt(250)})
	require.NoError(t, err)
	require.EqualValues(t, 12, stock.Quantity)
	require.True(t, decimal.NewFromInt(100).Equal(stock.UnitPrice), "existing row keeps its price")
	require.Len(t, tx.stocks, 1)
}

func TestDecreaseExactAndShortage(t *testing.T) {
	tx := &memoryTx{}
	acc := NewAccessor()
	ctx := context.Background()

	_, err := acc.Increase(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 4})
	require.NoError(t, err)

	_, err = acc.Decrease(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.EqualValues(t, 4, shortage.Available)
	require.EqualValues(t, 1, shortage.Shortfall())
	require.Contains(t, err.Error(), "Insufficient inventory for product 10")

	stock, err := acc.Decrease(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 4})
	require.NoError(t, err)
	require.Zero(t, stock.Quantity)
}

func TestDecreaseMissingRow(t *testing.T) {
	_, err := NewAccessor().Decrease(context.Background(), &memoryTx{}, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
}

func TestDecreaseAnyDrawsInRowOrder(t *testing.T) {
	tx := &memoryTx{}
	acc := NewAccessor()
	ctx := context.Background()
	_, err := tx.InsertStock(ctx, Stock{CompanyID: 1, ProductID: 10, ProviderID: 1, Quantity: 3})
	require.NoError(t, err)
	_, err = tx.InsertStock(ctx, Stock{CompanyID: 1, ProductID: 10, ProviderID: 2, Quantity: 10})
	require.NoError(t, err)

	draws, err := acc.DecreaseAny(ctx, tx, Movement{CompanyID: 1, ProductID: 10, Quantity: 5})
	require.NoError(t, err)
	require.Len(t, draws, 2)
	require.EqualValues(t, 1, draws[0].Stock.ProviderID)
	require.EqualValues(t, 3, draws[0].Quantity)
	require.EqualValues(t, 2, draws[1].Quantity)
	require.EqualValues(t, 8, tx.stocks[1].Quantity)

	_, err = acc.DecreaseAny(ctx, tx, Movement{CompanyID: 1, ProductID: 10, Quantity: 9})
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.EqualValues(t, 8, tx.stocks[1].Quantity, "aggregate check happens before any deduction")
}

func TestMovementValidation(t *testing.T) {
	acc := NewAccessor()
	ctx := context.Background()
	_, err := acc.Increase(ctx, &memoryTx{}, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = acc.Increase(ctx, &memoryTx{}, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 1, UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = acc.Decrease(ctx, &memoryTx{}, Movement{CompanyID: 1, ProductID: 10, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecorderValidatesEntries(t *testing.T) {
	tx := &memoryTx{}
	rec := NewRecorder()
	ctx := context.Background()

	_, err := rec.Record(ctx, tx, Transaction{CompanyID: 1, ProductID: 10, Type: "ADJUST", Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = rec.Record(ctx, tx, Transaction{CompanyID: 1, ProductID: 10, Type: TransactionTypePurchase})
	require.ErrorIs(t, err, shared.ErrValidation)

	out, err := rec.RecordBulk(ctx, tx, []Transaction{
		{CompanyID: 1, ProductID: 10, Type: TransactionTypePurchase, Quantity: 5, InvoiceID: 7},
		{CompanyID: 1, ProductID: 10, Type: TransactionTypeDistribution, Quantity: SignedQuantity(TransactionTypeDistribution, 5), InvoiceID: 8},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.EqualValues(t, -5, out[1].Quantity)

	_, err = rec.FindBy(ctx, tx, TransactionFilter{CompanyID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	page, err := rec.FindBy(ctx, tx, TransactionFilter{CompanyID: 1, InvoiceID: 8})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestSignedQuantity(t *testing.T) {
	require.EqualValues(t, 4, SignedQuantity(TransactionTypePurchase, 4))
	require.EqualValues(t, 4, SignedQuantity(TransactionTypeReturn, -4))
	require.EqualValues(t, -4, SignedQuantity(TransactionTypeDistribution, 4))
}

func TestDecreaseWrapsStorageFailure(t *testing.T) {
	tx := &memoryTx{}
	ctx := context.Background()
	_, err := tx.InsertStock(ctx, Stock{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 5})
	require.NoError(t, err)
	tx.failOn = "update"

	_, err = NewAccessor().Decrease(ctx, tx, Movement{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 1})
	require.Error(t, err)
	require.ErrorIs(t, shared.Classify(err), shared.ErrInternal)
}
