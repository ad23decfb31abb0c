package inventory

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type mockReadRepo struct {
	stocks     []Stock
	ledger     map[int64]int64
	products   []ProductKey
	listCalls  int
	ledgerErr  error
	lastFilter StockFilter
}

func (m *mockReadRepo) ListStock(ctx context.Context, filter StockFilter) (StockPage, error) {
	m.listCalls++
	m.lastFilter = filter
	return StockPage{Items: m.stocks, Total: len(m.stocks)}, nil
}

func (m *mockReadRepo) ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error) {
	var out []Stock
	for _, s := range m.stocks {
		if s.CompanyID == companyID && s.ProductID == productID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockReadRepo) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	return TransactionPage{Items: []Transaction{{ID: 1, CompanyID: filter.CompanyID, ProductID: filter.ProductID}}, Total: 1}, nil
}

func (m *mockReadRepo) LedgerByProvider(ctx context.Context, companyID, productID int64) (map[int64]int64, error) {
	return m.ledger, m.ledgerErr
}

func (m *mockReadRepo) ListStockedProducts(ctx context.Context, companyID int64) ([]ProductKey, error) {
	return m.products, nil
}

func newTestService(t *testing.T, repo ReadRepository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil), mr
}

func TestListStockCachesUntilBump(t *testing.T) {
	repo := &mockReadRepo{stocks: []Stock{{ID: 1, CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 4, UnitPrice: decimal.RequireFromString("12.50")}}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	page, err := svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, 20, repo.lastFilter.Page.Limit)

	page, err = svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)
	require.True(t, decimal.RequireFromString("12.5").Equal(page.Items[0].UnitPrice))

	svc.InvalidateStock(ctx, 1)
	_, err = svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}

func TestListStockBumpIsPerCompany(t *testing.T) {
	repo := &mockReadRepo{}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	svc.InvalidateStock(ctx, 2)
	_, err = svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)
}

func TestListStockWithoutCache(t *testing.T) {
	repo := &mockReadRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	_, err = svc.ListStock(ctx, StockFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)

	_, err = svc.ListStock(ctx, StockFilter{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestListTransactionsRequiresReference(t *testing.T) {
	svc := NewService(&mockReadRepo{}, nil, nil)
	_, err := svc.ListTransactions(context.Background(), TransactionFilter{CompanyID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	page, err := svc.ListTransactions(context.Background(), TransactionFilter{CompanyID: 1, ProductID: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestReconcile(t *testing.T) {
	repo := &mockReadRepo{
		stocks: []Stock{
			{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 4},
			{CompanyID: 1, ProductID: 10, ProviderID: 5, Quantity: 2},
		},
		ledger: map[int64]int64{3: 4, 5: 2},
	}
	svc := NewService(repo, nil, nil)
	rec, err := svc.Reconcile(context.Background(), 1, 10)
	require.NoError(t, err)
	require.True(t, rec.Balanced)
	require.EqualValues(t, 6, rec.StockQuantity)
	require.EqualValues(t, 6, rec.LedgerQuantity)
	require.Len(t, rec.Providers, 2)
	require.EqualValues(t, 3, rec.Providers[0].ProviderID)

	repo.ledger = map[int64]int64{3: 6}
	rec, err = svc.Reconcile(context.Background(), 1, 10)
	require.NoError(t, err)
	require.False(t, rec.Balanced)
	require.EqualValues(t, 6, rec.LedgerQuantity)
}

func TestReconcileAllReportsMismatches(t *testing.T) {
	repo := &mockReadRepo{
		stocks:   []Stock{{CompanyID: 1, ProductID: 10, ProviderID: 3, Quantity: 4}},
		ledger:   map[int64]int64{3: 5},
		products: []ProductKey{{CompanyID: 1, ProductID: 10}},
	}
	svc := NewService(repo, nil, nil)
	checked, mismatches, err := svc.ReconcileAll(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, checked)
	require.Len(t, mismatches, 1)
}
