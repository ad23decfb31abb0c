// Package memory is an in-process ledger backend. One mutex serializes every
// unit of work; a failed unit of work restores the snapshot taken at begin.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/payments"
	"github.com/odyssey-erp/stockledger/internal/returns"
)

type state struct {
	ids          map[string]int64
	stock        []inventory.Stock
	transactions []inventory.Transaction
	invoices     []invoices.Invoice
	items        []invoices.Item
	bills        []invoices.Bill
	payments     []payments.Payment
	returns      []returns.Return
	returnItems  []returns.Item
}

func (s *state) clone() *state {
	ids := make(map[string]int64, len(s.ids))
	for k, v := range s.ids {
		ids[k] = v
	}
	return &state{
		ids:          ids,
		stock:        slices.Clone(s.stock),
		transactions: slices.Clone(s.transactions),
		invoices:     slices.Clone(s.invoices),
		items:        slices.Clone(s.items),
		bills:        slices.Clone(s.bills),
		payments:     slices.Clone(s.payments),
		returns:      slices.Clone(s.returns),
		returnItems:  slices.Clone(s.returnItems),
	}
}

func (s *state) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

// Store holds every ledger table in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
	// invoiceSeq lives outside the snapshot so a rolled back unit of work
	// leaves a gap, as a database sequence does.
	invoiceSeq int64
}

// New returns an empty store.
func New() *Store {
	return &Store{st: &state{ids: make(map[string]int64)}, now: time.Now}
}

// withTx runs fn under the store lock and rolls back on error.
func (s *Store) withTx(ctx context.Context, fn func(*scope) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&scope{store: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// scope is the unit of work handed to engines. It satisfies both
// invoices.Tx and returns.Tx.
type scope struct {
	store *Store
}

func (c *scope) Invoices() invoices.TxRepository   { return invoiceTx{c.store} }
func (c *scope) Inventory() inventory.TxRepository { return inventoryTx{c.store} }
func (c *scope) Payments() payments.TxRepository   { return paymentTx{c.store} }
func (c *scope) Returns() returns.TxRepository     { return returnTx{c.store} }

// InvoiceStore adapts the store to invoices.Store.
func (s *Store) InvoiceStore() invoices.Store { return invoiceStore{s} }

// ReturnStore adapts the store to returns.Store.
func (s *Store) ReturnStore() returns.Store { return returnStore{s} }

// InventoryStore adapts the store to inventory.ReadRepository.
func (s *Store) InventoryStore() inventory.ReadRepository { return inventoryStore{s} }

// paginate slices rows for a page; a zero limit keeps every row.
func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
