package invoices_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/events"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

const (
	productX  = int64(7)
	provider1 = int64(11)
	provider2 = int64(12)
	zone1     = int64(21)
)

var caller = shared.Caller{CompanyID: 1, UserID: 9}

type fixture struct {
	engine    *invoices.Engine
	stock     inventory.ReadRepository
	publisher *events.Memory
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	registry := prometheus.NewRegistry()
	publisher := &events.Memory{}
	engine := invoices.NewEngine(store.InvoiceStore(), invoices.Options{
		Publisher: publisher,
		Metrics:   observability.NewLedger(registry),
	})
	return fixture{engine: engine, stock: store.InventoryStore(), publisher: publisher, registry: registry}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f fixture) purchase(t *testing.T, providerID, qty int64, price string) invoices.Detail {
	t.Helper()
	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:         invoices.TypeProvider,
		ToProviderID: providerID,
		Items:        []invoices.ItemSpec{{ProductID: productX, Quantity: qty, UnitPrice: dec(price)}},
	})
	require.NoError(t, err)
	return detail
}

func (f fixture) onHand(t *testing.T) int64 {
	t.Helper()
	rows, err := f.stock.ListStockByProduct(context.Background(), caller.CompanyID, productX)
	require.NoError(t, err)
	var total int64
	for _, r := range rows {
		total += r.Quantity
	}
	return total
}

func (f fixture) ledger(t *testing.T, filter inventory.TransactionFilter) []inventory.Transaction {
	t.Helper()
	filter.CompanyID = caller.CompanyID
	page, err := f.stock.ListTransactions(context.Background(), filter)
	require.NoError(t, err)
	return page.Items
}

func TestProviderInvoiceReceivesStock(t *testing.T) {
	f := newFixture(t)
	detail := f.purchase(t, provider1, 50, "80")

	require.Equal(t, int64(50), f.onHand(t))
	entries := f.ledger(t, inventory.TransactionFilter{InvoiceID: detail.ID})
	require.Len(t, entries, 1)
	require.Equal(t, inventory.TransactionTypePurchase, entries[0].Type)
	require.Equal(t, int64(50), entries[0].Quantity)
	require.Equal(t, provider1, entries[0].ProviderID)

	require.True(t, detail.TotalAmount.Equal(dec("4000")))
	require.True(t, detail.DueAmount.Equal(dec("4000")))
	require.True(t, detail.PaidAmount.IsZero())
	require.Regexp(t, `^PV-\d{4}-\d{6}$`, detail.Number)
	count, err := testutil.GatherAndCount(f.registry, "stockledger_invoices_created_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestProviderInvoicesAccumulate(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 30, "80")
	f.purchase(t, provider1, 20, "80")

	require.Equal(t, int64(50), f.onHand(t))
	rows, err := f.stock.ListStockByProduct(context.Background(), caller.CompanyID, productX)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestZoneInvoiceDistributesStock(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 100, "80")

	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: 30, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(70), f.onHand(t))

	entries := f.ledger(t, inventory.TransactionFilter{InvoiceID: detail.ID})
	require.Len(t, entries, 1)
	require.Equal(t, inventory.TransactionTypeDistribution, entries[0].Type)
	require.Equal(t, int64(-30), entries[0].Quantity)
	require.Equal(t, zone1, entries[0].ZoneID)
	require.Regexp(t, `^ZN-`, detail.Number)
}

func TestZoneInvoiceShortageRollsBack(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 100, "80")

	_, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: 150, UnitPrice: dec("100")}},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.Contains(t, err.Error(), "Insufficient inventory")
	require.Equal(t, int64(100), f.onHand(t))

	page, err := f.engine.List(context.Background(), invoices.ListFilter{CompanyID: caller.CompanyID, Type: invoices.TypeZone})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Len(t, f.ledger(t, inventory.TransactionFilter{}), 1)
}

func TestZoneInvoiceBoundary(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 10, "80")

	spec := func(qty int64) invoices.CreateSpec {
		return invoices.CreateSpec{
			Type:     invoices.TypeZone,
			ToZoneID: zone1,
			Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: qty, UnitPrice: dec("1")}},
		}
	}
	_, err := f.engine.CreateInvoice(context.Background(), caller, spec(10))
	require.NoError(t, err)
	require.Zero(t, f.onHand(t))

	_, err = f.engine.CreateInvoice(context.Background(), caller, spec(1))
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.Zero(t, f.onHand(t))
}

func TestZoneInvoiceWithoutProviderDrawsAcrossProviders(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 5, "80")
	f.purchase(t, provider2, 10, "90")

	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Items:    []invoices.ItemSpec{{ProductID: productX, Quantity: 8, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), f.onHand(t))

	entries := f.ledger(t, inventory.TransactionFilter{InvoiceID: detail.ID})
	require.Len(t, entries, 2)
	require.Equal(t, provider1, entries[0].ProviderID)
	require.Equal(t, int64(-5), entries[0].Quantity)
	require.Equal(t, provider2, entries[1].ProviderID)
	require.Equal(t, int64(-3), entries[1].Quantity)
}

func TestConcurrentZoneInvoicesSerialize(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 100, "80")

	const writers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
		other     []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
				Type:     invoices.TypeZone,
				ToZoneID: zone1,
				Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: 7, UnitPrice: dec("100")}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, shared.ErrInsufficientInventory):
				short++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 14, succeeded)
	require.Equal(t, 6, short)
	require.Equal(t, int64(2), f.onHand(t))

	var sum int64
	for _, e := range f.ledger(t, inventory.TransactionFilter{ProductID: productX}) {
		sum += e.Quantity
	}
	require.Equal(t, int64(2), sum)
}

func TestLedgerMatchesStockAfterRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, provider1, 40, "80")
	_, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: 40, UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	require.Zero(t, f.onHand(t))

	var sum int64
	entries := f.ledger(t, inventory.TransactionFilter{ProductID: productX})
	require.Len(t, entries, 2)
	for _, e := range entries {
		sum += e.Quantity
	}
	require.Zero(t, sum)
}

func TestPaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	detail, err := f.engine.CreateInvoice(ctx, caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Bills:    []invoices.BillSpec{{Title: "Freight", Amount: dec("1000")}},
	})
	require.NoError(t, err)
	require.True(t, detail.TotalAmount.Equal(dec("1000")))

	inv, payment, err := f.engine.RecordPayment(ctx, caller, detail.ID, invoices.PaymentSpec{Amount: dec("400")})
	require.NoError(t, err)
	require.True(t, inv.PaidAmount.Equal(dec("400")))
	require.True(t, inv.DueAmount.Equal(dec("600")))
	require.Equal(t, detail.ID, payment.InvoiceID)

	_, _, err = f.engine.RecordPayment(ctx, caller, detail.ID, invoices.PaymentSpec{Amount: dec("700")})
	require.ErrorIs(t, err, shared.ErrPaymentExceedsBalance)

	got, err := f.engine.Get(ctx, caller.CompanyID, detail.ID)
	require.NoError(t, err)
	require.True(t, got.PaidAmount.Equal(dec("400")))
	require.True(t, got.DueAmount.Equal(dec("600")))
	require.Len(t, got.Payments, 1)

	_, _, err = f.engine.RecordPayment(ctx, caller, detail.ID, invoices.PaymentSpec{Amount: dec("600")})
	require.NoError(t, err)
	got, err = f.engine.Get(ctx, caller.CompanyID, detail.ID)
	require.NoError(t, err)
	require.True(t, got.DueAmount.IsZero())
	require.True(t, got.PaidAmount.Add(got.DueAmount).Equal(got.TotalAmount))
}

func TestPricesRoundedToStoredPrecision(t *testing.T) {
	f := newFixture(t)
	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:          invoices.TypeProvider,
		ToProviderID:  provider1,
		DiscountType:  invoices.DiscountAmount,
		DiscountValue: dec("1.234"),
		Items: []invoices.ItemSpec{{
			ProductID:       productX,
			Quantity:        3,
			UnitPrice:       dec("10.005"),
			DiscountPercent: dec("0.004"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	require.Equal(t, "10.01", detail.Items[0].UnitPrice.StringFixed(2))
	require.True(t, detail.Items[0].DiscountPercent.IsZero())
	require.Equal(t, "30.03", detail.Items[0].LineTotal.StringFixed(2))
	require.Equal(t, "1.23", detail.DiscountValue.StringFixed(2))
	require.Equal(t, "28.80", detail.TotalAmount.StringFixed(2))

	rows, err := f.stock.ListStockByProduct(context.Background(), caller.CompanyID, productX)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "10.01", rows[0].UnitPrice.StringFixed(2))

	updated, err := f.engine.UpdateDiscount(context.Background(), caller, detail.ID, invoices.DiscountSpec{
		Type: invoices.DiscountAmount, Value: dec("0.015"),
	})
	require.NoError(t, err)
	require.Equal(t, "0.02", updated.DiscountValue.StringFixed(2))
	require.Equal(t, "30.01", updated.TotalAmount.StringFixed(2))
}

func TestPaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:  invoices.TypeCompany,
		Bills: []invoices.BillSpec{{Title: "Rent", Amount: dec("10")}},
	})
	require.NoError(t, err)

	_, _, err = f.engine.RecordPayment(context.Background(), caller, detail.ID, invoices.PaymentSpec{Amount: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateInvoiceRejectsRecipientMismatch(t *testing.T) {
	f := newFixture(t)
	cases := []invoices.CreateSpec{
		{Type: invoices.TypeProvider},
		{Type: invoices.TypeProvider, ToProviderID: provider1, ToZoneID: zone1},
		{Type: invoices.TypeZone, ToProviderID: provider1},
		{Type: invoices.TypeCompany, ToZoneID: zone1},
		{Type: "OTHER"},
	}
	for _, spec := range cases {
		_, err := f.engine.CreateInvoice(context.Background(), caller, spec)
		require.ErrorIs(t, err, shared.ErrInvalidRecipient, "spec %+v", spec)
	}
}

func TestCreateInvoiceRequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateInvoice(context.Background(), shared.Caller{}, invoices.CreateSpec{Type: invoices.TypeCompany})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestCompanyInvoiceLeavesStockAlone(t *testing.T) {
	f := newFixture(t)
	detail, err := f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:  invoices.TypeCompany,
		Items: []invoices.ItemSpec{{ProductID: productX, Quantity: 3, UnitPrice: dec("10")}},
	})
	require.NoError(t, err)
	require.Regexp(t, `^CO-`, detail.Number)
	require.Zero(t, f.onHand(t))
	require.Empty(t, f.ledger(t, inventory.TransactionFilter{}))
}

func TestTotalsWithDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	detail, err := f.engine.CreateInvoice(ctx, caller, invoices.CreateSpec{
		Type:          invoices.TypeCompany,
		DiscountType:  invoices.DiscountPercentage,
		DiscountValue: dec("10"),
		Items: []invoices.ItemSpec{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("50"), DiscountPercent: dec("10")},
			{ProductID: 2, Quantity: 1, UnitPrice: dec("10")},
		},
		Bills: []invoices.BillSpec{{Title: "Handling", Amount: dec("5")}},
	})
	require.NoError(t, err)
	// (90 + 10 + 5) * 0.9
	require.True(t, detail.TotalAmount.Equal(dec("94.5")), detail.TotalAmount.String())

	detail, err = f.engine.UpdateDiscount(ctx, caller, detail.ID, invoices.DiscountSpec{Type: invoices.DiscountAmount, Value: dec("200")})
	require.NoError(t, err)
	require.True(t, detail.TotalAmount.IsZero())

	detail, err = f.engine.UpdateDiscount(ctx, caller, detail.ID, invoices.DiscountSpec{})
	require.NoError(t, err)
	require.True(t, detail.TotalAmount.Equal(dec("105")))
}

func TestItemEditsRecomputeTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	detail, err := f.engine.CreateInvoice(ctx, caller, invoices.CreateSpec{
		Type:  invoices.TypeCompany,
		Items: []invoices.ItemSpec{{ProductID: 1, Quantity: 2, UnitPrice: dec("50")}},
	})
	require.NoError(t, err)

	detail, err = f.engine.AddItem(ctx, caller, detail.ID, invoices.ItemSpec{ProductID: 2, Quantity: 1, UnitPrice: dec("25")})
	require.NoError(t, err)
	require.Len(t, detail.Items, 2)
	require.True(t, detail.TotalAmount.Equal(dec("125")))

	_, _, err = f.engine.RecordPayment(ctx, caller, detail.ID, invoices.PaymentSpec{Amount: dec("110")})
	require.NoError(t, err)

	_, err = f.engine.RemoveItem(ctx, caller, detail.ID, detail.Items[1].ID)
	require.ErrorIs(t, err, shared.ErrInconsistentTotals)

	detail, err = f.engine.UpdateItem(ctx, caller, detail.ID, detail.Items[0].ID, invoices.ItemSpec{ProductID: 1, Quantity: 4, UnitPrice: dec("50")})
	require.NoError(t, err)
	require.True(t, detail.TotalAmount.Equal(dec("225")))
	require.True(t, detail.DueAmount.Equal(dec("115")))

	_, err = f.engine.RemoveItem(ctx, caller, detail.ID, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceIsolationByCompany(t *testing.T) {
	f := newFixture(t)
	detail := f.purchase(t, provider1, 5, "1")

	_, err := f.engine.Get(context.Background(), caller.CompanyID+1, detail.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, _, err = f.engine.RecordPayment(context.Background(), shared.Caller{CompanyID: caller.CompanyID + 1}, detail.ID,
		invoices.PaymentSpec{Amount: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	detail := f.purchase(t, provider1, 5, "1")
	_, _, err := f.engine.RecordPayment(context.Background(), caller, detail.ID, invoices.PaymentSpec{
		Amount: dec("2"),
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	published := f.publisher.Events()
	require.Len(t, published, 2)
	require.Equal(t, events.TypeInvoiceCreated, published[0].Type)
	require.Equal(t, events.TypePaymentRecorded, published[1].Type)
	require.Equal(t, detail.ID, published[1].AggregateID)

	_, err = f.engine.CreateInvoice(context.Background(), caller, invoices.CreateSpec{
		Type:     invoices.TypeZone,
		ToZoneID: zone1,
		Items:    []invoices.ItemSpec{{ProductID: productX, ProviderID: provider1, Quantity: 50, UnitPrice: dec("1")}},
	})
	require.True(t, errors.Is(err, shared.ErrInsufficientInventory))
	require.Len(t, f.publisher.Events(), 2)
}
