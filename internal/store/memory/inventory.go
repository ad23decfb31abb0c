package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

type inventoryTx struct {
	s *Store
}

func (t inventoryTx) GetStockForUpdate(_ context.Context, companyID, productID, providerID int64) (inventory.Stock, error) {
	for _, row := range t.s.st.stock {
		if row.CompanyID == companyID && row.ProductID == productID && row.ProviderID == providerID {
			return row, nil
		}
	}
	return inventory.Stock{}, inventory.ErrStockNotFound
}

func (t inventoryTx) ListStockByProductForUpdate(_ context.Context, companyID, productID int64) ([]inventory.Stock, error) {
	return stockByProduct(t.s.st, companyID, productID), nil
}

func (t inventoryTx) ListStockByProduct(_ context.Context, companyID, productID int64) ([]inventory.Stock, error) {
	return stockByProduct(t.s.st, companyID, productID), nil
}

func (t inventoryTx) InsertStock(_ context.Context, stock inventory.Stock) (inventory.Stock, error) {
	now := t.s.now()
	for i, row := range t.s.st.stock {
		if row.CompanyID == stock.CompanyID && row.ProductID == stock.ProductID && row.ProviderID == stock.ProviderID {
			row.Quantity += stock.Quantity
			row.UpdatedAt = now
			t.s.st.stock[i] = row
			return row, nil
		}
	}
	stock.ID = t.s.st.nextID("inventory")
	stock.CreatedAt = now
	stock.UpdatedAt = now
	t.s.st.stock = append(t.s.st.stock, stock)
	return stock, nil
}

func (t inventoryTx) UpdateStock(_ context.Context, stock inventory.Stock) (inventory.Stock, error) {
	for i, row := range t.s.st.stock {
		if row.ID == stock.ID {
			row.Quantity = stock.Quantity
			row.UpdatedAt = t.s.now()
			t.s.st.stock[i] = row
			return row, nil
		}
	}
	return inventory.Stock{}, inventory.ErrStockNotFound
}

func (t inventoryTx) InsertTransactions(_ context.Context, entries []inventory.Transaction) ([]inventory.Transaction, error) {
	out := make([]inventory.Transaction, 0, len(entries))
	for _, e := range entries {
		e.ID = t.s.st.nextID("inventory_transactions")
		e.CreatedAt = t.s.now()
		t.s.st.transactions = append(t.s.st.transactions, e)
		out = append(out, e)
	}
	return out, nil
}

func (t inventoryTx) ListTransactions(_ context.Context, filter inventory.TransactionFilter) (inventory.TransactionPage, error) {
	return listTransactions(t.s.st, filter), nil
}

type inventoryStore struct {
	s *Store
}

func (r inventoryStore) ListStock(_ context.Context, filter inventory.StockFilter) (inventory.StockPage, error) {
	var page inventory.StockPage
	r.s.read(func() {
		var rows []inventory.Stock
		for _, row := range r.s.st.stock {
			if row.CompanyID != filter.CompanyID {
				continue
			}
			if filter.ProductID != 0 && row.ProductID != filter.ProductID {
				continue
			}
			if filter.ProviderID != 0 && row.ProviderID != filter.ProviderID {
				continue
			}
			rows = append(rows, row)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].ProductID != rows[j].ProductID {
				return rows[i].ProductID < rows[j].ProductID
			}
			return rows[i].ID < rows[j].ID
		})
		page.Total = len(rows)
		page.Items = paginate(rows, filter.Page.Limit, filter.Page.Offset())
	})
	return page, nil
}

func (r inventoryStore) ListStockByProduct(_ context.Context, companyID, productID int64) ([]inventory.Stock, error) {
	var out []inventory.Stock
	r.s.read(func() { out = stockByProduct(r.s.st, companyID, productID) })
	return out, nil
}

func (r inventoryStore) ListTransactions(_ context.Context, filter inventory.TransactionFilter) (inventory.TransactionPage, error) {
	var page inventory.TransactionPage
	r.s.read(func() { page = listTransactions(r.s.st, filter) })
	return page, nil
}

func (r inventoryStore) LedgerByProvider(_ context.Context, companyID, productID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	r.s.read(func() {
		for _, e := range r.s.st.transactions {
			if e.CompanyID == companyID && e.ProductID == productID {
				out[e.ProviderID] += e.Quantity
			}
		}
	})
	return out, nil
}

func (r inventoryStore) ListStockedProducts(_ context.Context, companyID int64) ([]inventory.ProductKey, error) {
	seen := make(map[inventory.ProductKey]struct{})
	r.s.read(func() {
		for _, row := range r.s.st.stock {
			if companyID == 0 || row.CompanyID == companyID {
				seen[inventory.ProductKey{CompanyID: row.CompanyID, ProductID: row.ProductID}] = struct{}{}
			}
		}
		for _, e := range r.s.st.transactions {
			if companyID == 0 || e.CompanyID == companyID {
				seen[inventory.ProductKey{CompanyID: e.CompanyID, ProductID: e.ProductID}] = struct{}{}
			}
		}
	})
	out := make([]inventory.ProductKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func stockByProduct(st *state, companyID, productID int64) []inventory.Stock {
	var out []inventory.Stock
	for _, row := range st.stock {
		if row.CompanyID == companyID && row.ProductID == productID {
			out = append(out, row)
		}
	}
	return out
}

func listTransactions(st *state, filter inventory.TransactionFilter) inventory.TransactionPage {
	var rows []inventory.Transaction
	for _, e := range st.transactions {
		switch {
		case e.CompanyID != filter.CompanyID,
			filter.InvoiceID != 0 && e.InvoiceID != filter.InvoiceID,
			filter.ReturnID != 0 && e.ReturnID != filter.ReturnID,
			filter.ProductID != 0 && e.ProductID != filter.ProductID,
			filter.ProviderID != 0 && e.ProviderID != filter.ProviderID,
			filter.Type != "" && e.Type != filter.Type:
			continue
		}
		rows = append(rows, e)
	}
	return inventory.TransactionPage{
		Items: paginate(rows, filter.Page.Limit, filter.Page.Offset()),
		Total: len(rows),
	}
}
