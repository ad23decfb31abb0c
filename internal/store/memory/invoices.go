package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/payments"
)

type invoiceTx struct {
	s *Store
}

func (t invoiceTx) NextNumber(context.Context) (int64, error) {
	t.s.invoiceSeq++
	return t.s.invoiceSeq, nil
}

func (t invoiceTx) InsertInvoice(_ context.Context, inv invoices.Invoice) (invoices.Invoice, error) {
	now := t.s.now()
	inv.ID = t.s.st.nextID("invoices")
	inv.CreatedAt = now
	inv.UpdatedAt = now
	t.s.st.invoices = append(t.s.st.invoices, inv)
	return inv, nil
}

func (t invoiceTx) GetInvoiceForUpdate(_ context.Context, companyID, id int64) (invoices.Invoice, error) {
	return findInvoice(t.s.st, companyID, id)
}

func (t invoiceTx) UpdateInvoice(_ context.Context, inv invoices.Invoice) (invoices.Invoice, error) {
	for i, row := range t.s.st.invoices {
		if row.CompanyID == inv.CompanyID && row.ID == inv.ID {
			row.TotalAmount = inv.TotalAmount
			row.PaidAmount = inv.PaidAmount
			row.DueAmount = inv.DueAmount
			row.DiscountType = inv.DiscountType
			row.DiscountValue = inv.DiscountValue
			row.UpdatedAt = t.s.now()
			t.s.st.invoices[i] = row
			return row, nil
		}
	}
	return invoices.Invoice{}, invoices.ErrInvoiceNotFound
}

func (t invoiceTx) InsertItems(_ context.Context, items []invoices.Item) ([]invoices.Item, error) {
	out := make([]invoices.Item, 0, len(items))
	for _, it := range items {
		it.ID = t.s.st.nextID("invoice_items")
		t.s.st.items = append(t.s.st.items, it)
		out = append(out, it)
	}
	return out, nil
}

func (t invoiceTx) GetItem(_ context.Context, companyID, invoiceID, itemID int64) (invoices.Item, error) {
	for _, it := range t.s.st.items {
		if it.CompanyID == companyID && it.InvoiceID == invoiceID && it.ID == itemID {
			return it, nil
		}
	}
	return invoices.Item{}, invoices.ErrItemNotFound
}

func (t invoiceTx) UpdateItem(_ context.Context, item invoices.Item) (invoices.Item, error) {
	for i, it := range t.s.st.items {
		if it.CompanyID == item.CompanyID && it.InvoiceID == item.InvoiceID && it.ID == item.ID {
			t.s.st.items[i] = item
			return item, nil
		}
	}
	return invoices.Item{}, invoices.ErrItemNotFound
}

func (t invoiceTx) DeleteItem(_ context.Context, companyID, invoiceID, itemID int64) error {
	for i, it := range t.s.st.items {
		if it.CompanyID == companyID && it.InvoiceID == invoiceID && it.ID == itemID {
			t.s.st.items = append(t.s.st.items[:i:i], t.s.st.items[i+1:]...)
			return nil
		}
	}
	return invoices.ErrItemNotFound
}

func (t invoiceTx) ListItems(_ context.Context, companyID, invoiceID int64) ([]invoices.Item, error) {
	return invoiceItems(t.s.st, companyID, invoiceID), nil
}

func (t invoiceTx) InsertBills(_ context.Context, bills []invoices.Bill) ([]invoices.Bill, error) {
	out := make([]invoices.Bill, 0, len(bills))
	for _, b := range bills {
		b.ID = t.s.st.nextID("invoice_bills")
		t.s.st.bills = append(t.s.st.bills, b)
		out = append(out, b)
	}
	return out, nil
}

func (t invoiceTx) ListBills(_ context.Context, companyID, invoiceID int64) ([]invoices.Bill, error) {
	return invoiceBills(t.s.st, companyID, invoiceID), nil
}

type paymentTx struct {
	s *Store
}

func (t paymentTx) InsertPayment(_ context.Context, p payments.Payment) (payments.Payment, error) {
	p.ID = t.s.st.nextID("payments")
	p.CreatedAt = t.s.now()
	t.s.st.payments = append(t.s.st.payments, p)
	return p, nil
}

func (t paymentTx) ListByInvoice(_ context.Context, companyID, invoiceID int64) ([]payments.Payment, error) {
	return invoicePayments(t.s.st, companyID, invoiceID), nil
}

type invoiceStore struct {
	s *Store
}

func (r invoiceStore) WithTx(ctx context.Context, fn func(context.Context, invoices.Tx) error) error {
	return r.s.withTx(ctx, func(c *scope) error { return fn(ctx, c) })
}

func (r invoiceStore) GetInvoice(_ context.Context, companyID, id int64) (invoices.Invoice, error) {
	var (
		inv invoices.Invoice
		err error
	)
	r.s.read(func() { inv, err = findInvoice(r.s.st, companyID, id) })
	return inv, err
}

func (r invoiceStore) ListItems(_ context.Context, companyID, invoiceID int64) ([]invoices.Item, error) {
	var out []invoices.Item
	r.s.read(func() { out = invoiceItems(r.s.st, companyID, invoiceID) })
	return out, nil
}

func (r invoiceStore) ListBills(_ context.Context, companyID, invoiceID int64) ([]invoices.Bill, error) {
	var out []invoices.Bill
	r.s.read(func() { out = invoiceBills(r.s.st, companyID, invoiceID) })
	return out, nil
}

func (r invoiceStore) ListByInvoice(_ context.Context, companyID, invoiceID int64) ([]payments.Payment, error) {
	var out []payments.Payment
	r.s.read(func() { out = invoicePayments(r.s.st, companyID, invoiceID) })
	return out, nil
}

func (r invoiceStore) ListInvoices(_ context.Context, filter invoices.ListFilter) (invoices.Page, error) {
	var page invoices.Page
	r.s.read(func() {
		var rows []invoices.Invoice
		for _, inv := range r.s.st.invoices {
			switch {
			case inv.CompanyID != filter.CompanyID,
				filter.Type != "" && inv.Type != filter.Type,
				filter.ToProviderID != 0 && inv.ToProviderID != filter.ToProviderID,
				filter.ToZoneID != 0 && inv.ToZoneID != filter.ToZoneID:
				continue
			}
			rows = append(rows, inv)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if !rows[i].Date.Equal(rows[j].Date) {
				return rows[i].Date.After(rows[j].Date)
			}
			return rows[i].ID > rows[j].ID
		})
		page.Total = len(rows)
		page.Items = paginate(rows, filter.Page.Limit, filter.Page.Offset())
	})
	return page, nil
}

func findInvoice(st *state, companyID, id int64) (invoices.Invoice, error) {
	for _, inv := range st.invoices {
		if inv.CompanyID == companyID && inv.ID == id {
			return inv, nil
		}
	}
	return invoices.Invoice{}, invoices.ErrInvoiceNotFound
}

func invoiceItems(st *state, companyID, invoiceID int64) []invoices.Item {
	var out []invoices.Item
	for _, it := range st.items {
		if it.CompanyID == companyID && it.InvoiceID == invoiceID {
			out = append(out, it)
		}
	}
	return out
}

func invoiceBills(st *state, companyID, invoiceID int64) []invoices.Bill {
	var out []invoices.Bill
	for _, b := range st.bills {
		if b.CompanyID == companyID && b.InvoiceID == invoiceID {
			out = append(out, b)
		}
	}
	return out
}

func invoicePayments(st *state, companyID, invoiceID int64) []payments.Payment {
	var out []payments.Payment
	for _, p := range st.payments {
		if p.CompanyID == companyID && p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out
}
