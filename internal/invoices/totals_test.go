package invoices

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestLineTotal(t *testing.T) {
	require.True(t, LineTotal(3, d("19.99"), decimal.Zero).Equal(d("59.97")))
	require.True(t, LineTotal(2, d("50"), d("10")).Equal(d("90")))
	require.True(t, LineTotal(1, d("10"), d("100")).IsZero())
	require.True(t, LineTotal(3, d("0.333"), d("0")).Equal(d("1")))
}

func TestApplyDiscount(t *testing.T) {
	require.True(t, ApplyDiscount(d("200"), "", d("50")).Equal(d("200")))
	require.True(t, ApplyDiscount(d("200"), DiscountPercentage, d("12.5")).Equal(d("175")))
	require.True(t, ApplyDiscount(d("200"), DiscountAmount, d("50.25")).Equal(d("149.75")))
	require.True(t, ApplyDiscount(d("20"), DiscountAmount, d("50")).IsZero())
}

func TestFormatNumber(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "PV-2024-000001", FormatNumber(TypeProvider, date, 1))
	require.Equal(t, "ZN-2024-000042", FormatNumber(TypeZone, date, 42))
	require.Equal(t, "CO-2024-123456", FormatNumber(TypeCompany, date, 123456))
	require.Equal(t, "IN-2024-000007", FormatNumber("OTHER", date, 7))
}

func TestCheckBalance(t *testing.T) {
	inv := Invoice{Number: "ZN-2024-000001", TotalAmount: d("100"), PaidAmount: d("40"), DueAmount: d("60")}
	require.NoError(t, inv.CheckBalance())

	inv.DueAmount = d("50")
	require.True(t, errors.Is(inv.CheckBalance(), shared.ErrInconsistentTotals))

	inv.PaidAmount, inv.DueAmount = d("110"), d("-10")
	require.True(t, errors.Is(inv.CheckBalance(), shared.ErrInconsistentTotals))
}

func TestValidateDiscount(t *testing.T) {
	require.NoError(t, validateDiscount("", decimal.Zero))
	require.NoError(t, validateDiscount(DiscountPercentage, d("100")))
	require.ErrorIs(t, validateDiscount(DiscountPercentage, d("100.01")), shared.ErrValidation)
	require.ErrorIs(t, validateDiscount(DiscountAmount, d("-1")), shared.ErrValidation)
	require.ErrorIs(t, validateDiscount("fixed", d("1")), shared.ErrValidation)
}

func TestValidateItemSpec(t *testing.T) {
	require.NoError(t, validateItemSpec(0, ItemSpec{ProductID: 1, Quantity: 1, UnitPrice: d("0")}))
	require.ErrorIs(t, validateItemSpec(0, ItemSpec{Quantity: 1}), shared.ErrValidation)
	require.ErrorIs(t, validateItemSpec(0, ItemSpec{ProductID: 1}), shared.ErrValidation)
	require.ErrorIs(t, validateItemSpec(0, ItemSpec{ProductID: 1, Quantity: 1, UnitPrice: d("-1")}), shared.ErrValidation)
	require.ErrorIs(t, validateItemSpec(0, ItemSpec{ProductID: 1, Quantity: 1, DiscountPercent: d("101")}), shared.ErrValidation)
}
