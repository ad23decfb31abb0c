package invoices

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineTotal is quantity × unitPrice × (1 − discountPercent/100), rounded to cents.
func LineTotal(quantity int64, unitPrice, discountPercent decimal.Decimal) decimal.Decimal {
	gross := unitPrice.Mul(decimal.NewFromInt(quantity))
	factor := hundred.Sub(discountPercent).Div(hundred)
	return gross.Mul(factor).Round(2)
}

// Subtotal sums discounted line totals and bill amounts.
func Subtotal(items []Item, bills []Bill) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LineTotal(it.Quantity, it.UnitPrice, it.DiscountPercent))
	}
	for _, b := range bills {
		sum = sum.Add(b.Amount)
	}
	return sum
}

// ApplyDiscount applies the invoice-level discount, never going below zero.
func ApplyDiscount(subtotal decimal.Decimal, t DiscountType, value decimal.Decimal) decimal.Decimal {
	total := subtotal
	switch t {
	case DiscountPercentage:
		total = subtotal.Sub(subtotal.Mul(value).Div(hundred))
	case DiscountAmount:
		total = subtotal.Sub(value)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

// FormatNumber renders an invoice number such as ZN-2024-000042. Unknown
// types fall back to the IN prefix.
func FormatNumber(t Type, date time.Time, seq int64) string {
	prefix := "IN"
	switch t {
	case TypeProvider:
		prefix = "PV"
	case TypeZone:
		prefix = "ZN"
	case TypeCompany:
		prefix = "CO"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, date.Year(), seq)
}
