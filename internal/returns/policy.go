package returns

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Allocation is the share of a returned line credited to one provider.
type Allocation struct {
	ProviderID int64
	Quantity   int64
}

// ProviderPolicy splits a returned line across the providers to credit.
// The allocated quantities always sum to the item's returned quantity.
type ProviderPolicy interface {
	Allocate(ctx context.Context, tx inventory.TxRepository, ret Return, item Item) ([]Allocation, error)
}

// PolicyFor resolves a configured policy name.
func PolicyFor(name string) (ProviderPolicy, error) {
	switch name {
	case "", "first":
		return FirstHolderPolicy{}, nil
	case "original":
		return OriginalDistributionPolicy{}, nil
	default:
		return nil, fmt.Errorf("returns: unknown provider policy %q", name)
	}
}

// FirstHolderPolicy credits the first provider row holding the product,
// preferring rows with stock on hand.
type FirstHolderPolicy struct{}

// Allocate implements ProviderPolicy.
func (FirstHolderPolicy) Allocate(ctx context.Context, tx inventory.TxRepository, ret Return, item Item) ([]Allocation, error) {
	providerID, err := firstHolder(ctx, tx, ret.CompanyID, item.ProductID)
	if err != nil {
		return nil, err
	}
	return []Allocation{{ProviderID: providerID, Quantity: item.ReturnedQuantity}}, nil
}

func firstHolder(ctx context.Context, tx inventory.TxRepository, companyID, productID int64) (int64, error) {
	rows, err := inventory.NewAccessor().FindByProduct(ctx, tx, companyID, productID)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.Quantity > 0 {
			return row.ProviderID, nil
		}
	}
	if len(rows) > 0 {
		return rows[0].ProviderID, nil
	}
	return 0, shared.NotFoundf("returns: no provider holds product %d", productID)
}

// OriginalDistributionPolicy credits the providers the original invoice drew
// the product from, each up to what it supplied less what earlier approved
// returns already gave back. Any remainder goes to the first holder.
type OriginalDistributionPolicy struct{}

// Allocate implements ProviderPolicy.
func (OriginalDistributionPolicy) Allocate(ctx context.Context, tx inventory.TxRepository, ret Return, item Item) ([]Allocation, error) {
	drawn, order, err := providerTotals(ctx, tx, ret, item.ProductID, inventory.TransactionTypeDistribution)
	if err != nil {
		return nil, err
	}
	returned, _, err := providerTotals(ctx, tx, ret, item.ProductID, inventory.TransactionTypeReturn)
	if err != nil {
		return nil, err
	}

	var out []Allocation
	remaining := item.ReturnedQuantity
	for _, providerID := range order {
		if remaining == 0 {
			break
		}
		open := drawn[providerID] - returned[providerID]
		if open <= 0 {
			continue
		}
		qty := min(open, remaining)
		out = append(out, Allocation{ProviderID: providerID, Quantity: qty})
		remaining -= qty
	}
	if remaining == 0 {
		return out, nil
	}

	providerID, err := firstHolder(ctx, tx, ret.CompanyID, item.ProductID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ProviderID == providerID {
			out[i].Quantity += remaining
			return out, nil
		}
	}
	return append(out, Allocation{ProviderID: providerID, Quantity: remaining}), nil
}

// providerTotals sums absolute ledger quantities of one type on the return's
// invoice per provider, keeping providers in ledger order.
func providerTotals(ctx context.Context, tx inventory.TxRepository, ret Return, productID int64, typ inventory.TransactionType) (map[int64]int64, []int64, error) {
	page, err := tx.ListTransactions(ctx, inventory.TransactionFilter{
		CompanyID: ret.CompanyID,
		InvoiceID: ret.InvoiceID,
		ProductID: productID,
		Type:      typ,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("returns: load %s entries: %w", typ, err)
	}
	totals := make(map[int64]int64)
	var order []int64
	for _, entry := range page.Items {
		if entry.ProviderID == 0 {
			continue
		}
		if _, seen := totals[entry.ProviderID]; !seen {
			order = append(order, entry.ProviderID)
		}
		qty := entry.Quantity
		if qty < 0 {
			qty = -qty
		}
		totals[entry.ProviderID] += qty
	}
	return totals, order, nil
}
