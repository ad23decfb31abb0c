package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/stockledger/internal/returns"
)

type returnTx struct {
	s *Store
}

func (t returnTx) InsertReturn(_ context.Context, ret returns.Return) (returns.Return, error) {
	now := t.s.now()
	ret.ID = t.s.st.nextID("product_returns")
	ret.CreatedAt = now
	ret.UpdatedAt = now
	t.s.st.returns = append(t.s.st.returns, ret)
	return ret, nil
}

func (t returnTx) InsertItems(_ context.Context, items []returns.Item) ([]returns.Item, error) {
	out := make([]returns.Item, 0, len(items))
	for _, it := range items {
		it.ID = t.s.st.nextID("product_return_items")
		t.s.st.returnItems = append(t.s.st.returnItems, it)
		out = append(out, it)
	}
	return out, nil
}

func (t returnTx) GetReturnForUpdate(_ context.Context, companyID, id int64) (returns.Return, error) {
	return findReturn(t.s.st, companyID, id)
}

func (t returnTx) UpdateStatus(_ context.Context, ret returns.Return) (returns.Return, error) {
	for i, row := range t.s.st.returns {
		if row.CompanyID == ret.CompanyID && row.ID == ret.ID {
			row.Status = ret.Status
			row.ApprovedBy = ret.ApprovedBy
			row.ApprovedAt = ret.ApprovedAt
			row.RejectedBy = ret.RejectedBy
			row.RejectedAt = ret.RejectedAt
			row.UpdatedAt = t.s.now()
			t.s.st.returns[i] = row
			return row, nil
		}
	}
	return returns.Return{}, returns.ErrReturnNotFound
}

func (t returnTx) ListItems(_ context.Context, companyID, returnID int64) ([]returns.Item, error) {
	return returnItems(t.s.st, companyID, returnID), nil
}

func (t returnTx) ReturnedQuantities(_ context.Context, companyID, invoiceID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, ret := range t.s.st.returns {
		if ret.CompanyID != companyID || ret.InvoiceID != invoiceID || ret.Status == returns.StatusRejected {
			continue
		}
		for _, it := range returnItems(t.s.st, companyID, ret.ID) {
			out[it.ProductID] += it.ReturnedQuantity
		}
	}
	return out, nil
}

type returnStore struct {
	s *Store
}

func (r returnStore) WithTx(ctx context.Context, fn func(context.Context, returns.Tx) error) error {
	return r.s.withTx(ctx, func(c *scope) error { return fn(ctx, c) })
}

func (r returnStore) GetReturn(_ context.Context, companyID, id int64) (returns.Return, error) {
	var (
		ret returns.Return
		err error
	)
	r.s.read(func() { ret, err = findReturn(r.s.st, companyID, id) })
	return ret, err
}

func (r returnStore) ListItems(_ context.Context, companyID, returnID int64) ([]returns.Item, error) {
	var out []returns.Item
	r.s.read(func() { out = returnItems(r.s.st, companyID, returnID) })
	return out, nil
}

func (r returnStore) ListReturns(_ context.Context, filter returns.ListFilter) (returns.Page, error) {
	var page returns.Page
	r.s.read(func() {
		var rows []returns.Return
		for _, ret := range r.s.st.returns {
			switch {
			case ret.CompanyID != filter.CompanyID,
				filter.InvoiceID != 0 && ret.InvoiceID != filter.InvoiceID,
				filter.ZoneID != 0 && ret.ZoneID != filter.ZoneID,
				filter.Status != "" && ret.Status != filter.Status:
				continue
			}
			rows = append(rows, ret)
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
		page.Total = len(rows)
		page.Items = paginate(rows, filter.Page.Limit, filter.Page.Offset())
	})
	return page, nil
}

func findReturn(st *state, companyID, id int64) (returns.Return, error) {
	for _, ret := range st.returns {
		if ret.CompanyID == companyID && ret.ID == id {
			return ret, nil
		}
	}
	return returns.Return{}, returns.ErrReturnNotFound
}

func returnItems(st *state, companyID, returnID int64) []returns.Item {
	var out []returns.Item
	for _, it := range st.returnItems {
		if it.CompanyID == companyID && it.ReturnID == returnID {
			out = append(out, it)
		}
	}
	return out
}
