package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Accessor is the only component allowed to change on-hand quantity. It never
// opens transactions; every call runs on the caller's TxRepository.
type Accessor struct{}

// NewAccessor builds Accessor.
func NewAccessor() *Accessor {
	return &Accessor{}
}

// Increase adds stock to the (product, provider, company) row, creating the
// row with the movement's unit price on first purchase.
func (a *Accessor) Increase(ctx context.Context, tx TxRepository, m Movement) (Stock, error) {
	if err := validateMovement(m); err != nil {
		return Stock{}, err
	}
	if m.ProviderID == 0 {
		return Stock{}, shared.Validationf("inventory: provider required to increase product %d", m.ProductID)
	}
	stock, err := tx.GetStockForUpdate(ctx, m.CompanyID, m.ProductID, m.ProviderID)
	if errors.Is(err, ErrStockNotFound) {
		created, err := tx.InsertStock(ctx, Stock{
			CompanyID:  m.CompanyID,
			ProductID:  m.ProductID,
			ProviderID: m.ProviderID,
			Quantity:   m.Quantity,
			UnitPrice:  m.UnitPrice,
		})
		if err != nil {
			return Stock{}, fmt.Errorf("inventory: insert stock: %w", err)
		}
		return created, nil
	}
	if err != nil {
		return Stock{}, fmt.Errorf("inventory: lock stock: %w", err)
	}
	stock.Quantity += m.Quantity
	updated, err := tx.UpdateStock(ctx, stock)
	if err != nil {
		return Stock{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	return updated, nil
}

// Decrease deducts stock from one provider row.
func (a *Accessor) Decrease(ctx context.Context, tx TxRepository, m Movement) (Stock, error) {
	if err := validateMovement(m); err != nil {
		return Stock{}, err
	}
	if m.ProviderID == 0 {
		return Stock{}, shared.Validationf("inventory: provider required to decrease product %d", m.ProductID)
	}
	stock, err := tx.GetStockForUpdate(ctx, m.CompanyID, m.ProductID, m.ProviderID)
	if errors.Is(err, ErrStockNotFound) {
		return Stock{}, &ShortageError{ProductID: m.ProductID, ProviderID: m.ProviderID, Requested: m.Quantity}
	}
	if err != nil {
		return Stock{}, fmt.Errorf("inventory: lock stock: %w", err)
	}
	if stock.Quantity < m.Quantity {
		return Stock{}, &ShortageError{ProductID: m.ProductID, ProviderID: m.ProviderID, Requested: m.Quantity, Available: stock.Quantity}
	}
	stock.Quantity -= m.Quantity
	updated, err := tx.UpdateStock(ctx, stock)
	if err != nil {
		return Stock{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	return updated, nil
}

// DecreaseAny draws the quantity across every provider row of the product in
// row order. Availability is checked against the locked aggregate before any
// row is touched.
func (a *Accessor) DecreaseAny(ctx context.Context, tx TxRepository, m Movement) ([]Draw, error) {
	if err := validateMovement(m); err != nil {
		return nil, err
	}
	rows, err := tx.ListStockByProductForUpdate(ctx, m.CompanyID, m.ProductID)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock product stock: %w", err)
	}
	var available int64
	for _, row := range rows {
		available += row.Quantity
	}
	if available < m.Quantity {
		return nil, &ShortageError{ProductID: m.ProductID, Requested: m.Quantity, Available: available}
	}
	remaining := m.Quantity
	draws := make([]Draw, 0, 1)
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		if row.Quantity == 0 {
			continue
		}
		take := min(row.Quantity, remaining)
		row.Quantity -= take
		updated, err := tx.UpdateStock(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("inventory: update stock: %w", err)
		}
		draws = append(draws, Draw{Stock: updated, Quantity: take})
		remaining -= take
	}
	return draws, nil
}

// FindByProduct lists every provider row holding the product.
func (a *Accessor) FindByProduct(ctx context.Context, tx TxRepository, companyID, productID int64) ([]Stock, error) {
	if productID == 0 {
		return nil, shared.Validationf("inventory: product required")
	}
	return tx.ListStockByProduct(ctx, companyID, productID)
}

func validateMovement(m Movement) error {
	if m.CompanyID == 0 || m.ProductID == 0 {
		return shared.Validationf("inventory: company and product required")
	}
	if m.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if m.UnitPrice.IsNegative() {
		return ErrInvalidUnitPrice
	}
	return nil
}
