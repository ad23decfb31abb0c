package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/events"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/payments"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// StockNotifier is told when a committed unit of work changed stock.
type StockNotifier interface {
	InvalidateStock(ctx context.Context, companyID int64)
}

// Options groups optional collaborators of Engine.
type Options struct {
	Audit     shared.AuditPort
	Publisher events.Publisher
	Stock     StockNotifier
	Metrics   *observability.Ledger
	Logger    *slog.Logger
}

// Engine creates invoices and keeps their balances consistent with items,
// discounts and payments.
type Engine struct {
	store     Store
	accessor  *inventory.Accessor
	ledger    *inventory.Recorder
	payments  *payments.Recorder
	audit     shared.AuditPort
	publisher events.Publisher
	stock     StockNotifier
	metrics   *observability.Ledger
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine builds Engine.
func NewEngine(store Store, opts Options) *Engine {
	e := &Engine{
		store:     store,
		accessor:  inventory.NewAccessor(),
		ledger:    inventory.NewRecorder(),
		payments:  payments.NewRecorder(),
		audit:     opts.Audit,
		publisher: opts.Publisher,
		stock:     opts.Stock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if e.publisher == nil {
		e.publisher = events.Noop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// CreateInvoice persists an invoice with its items and bills and applies the
// inventory effect of its type in one transaction.
func (e *Engine) CreateInvoice(ctx context.Context, caller shared.Caller, spec CreateSpec) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	if err := CheckRecipient(spec.Type, spec.ToProviderID, spec.ToZoneID); err != nil {
		return Detail{}, err
	}
	if err := validateDiscount(spec.DiscountType, spec.DiscountValue); err != nil {
		return Detail{}, err
	}
	for i, it := range spec.Items {
		if err := validateItemSpec(i, it); err != nil {
			return Detail{}, err
		}
		if spec.Type == TypeProvider && it.ProviderID != 0 && it.ProviderID != spec.ToProviderID {
			return Detail{}, shared.Validationf("invoices: item %d provider differs from invoice provider", i+1)
		}
	}
	for i, b := range spec.Bills {
		if err := validateBillSpec(i, b); err != nil {
			return Detail{}, err
		}
	}
	if spec.Date.IsZero() {
		spec.Date = e.now()
	}

	var detail Detail
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		seq, err := tx.Invoices().NextNumber(ctx)
		if err != nil {
			return fmt.Errorf("invoices: next number: %w", err)
		}
		inv, err := tx.Invoices().InsertInvoice(ctx, Invoice{
			CompanyID:     caller.CompanyID,
			Type:          spec.Type,
			ToProviderID:  spec.ToProviderID,
			ToZoneID:      spec.ToZoneID,
			Number:        FormatNumber(spec.Type, spec.Date, seq),
			Date:          spec.Date,
			TotalAmount:   decimal.Zero,
			PaidAmount:    decimal.Zero,
			DueAmount:     decimal.Zero,
			DiscountType:  spec.DiscountType,
			DiscountValue: spec.DiscountValue.Round(2),
			Remarks:       spec.Remarks,
			CreatedBy:     caller.UserID,
		})
		if err != nil {
			return fmt.Errorf("invoices: insert invoice: %w", err)
		}

		if len(spec.Items) > 0 {
			items := make([]Item, 0, len(spec.Items))
			for _, it := range spec.Items {
				item := newItem(inv, it)
				if inv.Type == TypeProvider {
					item.ProviderID = inv.ToProviderID
				}
				items = append(items, item)
			}
			if _, err := tx.Invoices().InsertItems(ctx, items); err != nil {
				return fmt.Errorf("invoices: insert items: %w", err)
			}
			if err := e.applyInventory(ctx, tx, caller, inv, items); err != nil {
				return err
			}
		}

		if len(spec.Bills) > 0 {
			bills := make([]Bill, 0, len(spec.Bills))
			for _, b := range spec.Bills {
				bills = append(bills, Bill{
					CompanyID:   inv.CompanyID,
					InvoiceID:   inv.ID,
					Title:       b.Title,
					Description: b.Description,
					Amount:      b.Amount.Round(2),
				})
			}
			if _, err := tx.Invoices().InsertBills(ctx, bills); err != nil {
				return fmt.Errorf("invoices: insert bills: %w", err)
			}
		}

		if _, err := e.RecomputeTotals(ctx, tx, inv.CompanyID, inv.ID); err != nil {
			return err
		}
		detail, err = loadDetail(ctx, tx, inv.CompanyID, inv.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientInventory) {
			e.metrics.StockShortage()
		}
		return Detail{}, shared.Classify(err)
	}

	e.metrics.InvoiceCreated(string(detail.Type))
	if len(detail.Items) > 0 && detail.Type != TypeCompany {
		e.notifyStock(ctx, detail.CompanyID)
	}
	e.afterCommit(ctx, caller, "invoice.create", detail.ID, map[string]any{
		"invoice_number": detail.Number,
		"type":           detail.Type,
		"total_amount":   detail.TotalAmount.StringFixed(2),
		"items":          len(detail.Items),
		"bills":          len(detail.Bills),
	}, events.TypeInvoiceCreated, detail)
	return detail, nil
}

// applyInventory moves stock for the invoice lines and records the ledger
// entries. ZONE invoices draw stock, PROVIDER invoices receive it.
func (e *Engine) applyInventory(ctx context.Context, tx Tx, caller shared.Caller, inv Invoice, items []Item) error {
	var entries []inventory.Transaction
	switch inv.Type {
	case TypeZone:
		for _, it := range items {
			move := inventory.Movement{
				CompanyID:  inv.CompanyID,
				ProductID:  it.ProductID,
				ProviderID: it.ProviderID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
			}
			draws := []inventory.Draw{{Quantity: it.Quantity, Stock: inventory.Stock{ProviderID: it.ProviderID}}}
			if it.ProviderID != 0 {
				if _, err := e.accessor.Decrease(ctx, tx.Inventory(), move); err != nil {
					return err
				}
			} else {
				var err error
				if draws, err = e.accessor.DecreaseAny(ctx, tx.Inventory(), move); err != nil {
					return err
				}
			}
			for _, d := range draws {
				entries = append(entries, inventory.Transaction{
					CompanyID:  inv.CompanyID,
					ProductID:  it.ProductID,
					Type:       inventory.TransactionTypeDistribution,
					Quantity:   inventory.SignedQuantity(inventory.TransactionTypeDistribution, d.Quantity),
					UnitPrice:  it.UnitPrice,
					InvoiceID:  inv.ID,
					ProviderID: d.Stock.ProviderID,
					ZoneID:     inv.ToZoneID,
					Remarks:    "Distributed on invoice " + inv.Number,
					CreatedBy:  caller.UserID,
				})
			}
		}
	case TypeProvider:
		for _, it := range items {
			if _, err := e.accessor.Increase(ctx, tx.Inventory(), inventory.Movement{
				CompanyID:  inv.CompanyID,
				ProductID:  it.ProductID,
				ProviderID: inv.ToProviderID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
			}); err != nil {
				return err
			}
			entries = append(entries, inventory.Transaction{
				CompanyID:  inv.CompanyID,
				ProductID:  it.ProductID,
				Type:       inventory.TransactionTypePurchase,
				Quantity:   inventory.SignedQuantity(inventory.TransactionTypePurchase, it.Quantity),
				UnitPrice:  it.UnitPrice,
				InvoiceID:  inv.ID,
				ProviderID: inv.ToProviderID,
				Remarks:    "Purchased on invoice " + inv.Number,
				CreatedBy:  caller.UserID,
			})
		}
	default:
		return nil
	}
	if _, err := e.ledger.RecordBulk(ctx, tx.Inventory(), entries); err != nil {
		return err
	}
	return nil
}

// RecomputeTotals derives total and due from the current items, bills and
// discount. It must run inside the caller's transaction.
func (e *Engine) RecomputeTotals(ctx context.Context, tx Tx, companyID, invoiceID int64) (Invoice, error) {
	inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, companyID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	return recompute(ctx, tx, inv)
}

func recompute(ctx context.Context, tx Tx, inv Invoice) (Invoice, error) {
	items, err := tx.Invoices().ListItems(ctx, inv.CompanyID, inv.ID)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: list items: %w", err)
	}
	bills, err := tx.Invoices().ListBills(ctx, inv.CompanyID, inv.ID)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: list bills: %w", err)
	}
	total := ApplyDiscount(Subtotal(items, bills), inv.DiscountType, inv.DiscountValue)
	if total.LessThan(inv.PaidAmount) {
		return Invoice{}, fmt.Errorf("%w: invoice %s total %s would drop below paid %s",
			shared.ErrInconsistentTotals, inv.Number, total.StringFixed(2), inv.PaidAmount.StringFixed(2))
	}
	inv.TotalAmount = total
	inv.DueAmount = total.Sub(inv.PaidAmount)
	if err := inv.CheckBalance(); err != nil {
		return Invoice{}, err
	}
	updated, err := tx.Invoices().UpdateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: update totals: %w", err)
	}
	return updated, nil
}

// AddItem appends a line to an existing invoice. Stock is not moved.
func (e *Engine) AddItem(ctx context.Context, caller shared.Caller, invoiceID int64, spec ItemSpec) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	if err := validateItemSpec(0, spec); err != nil {
		return Detail{}, err
	}
	return e.editInvoice(ctx, caller, invoiceID, "invoice.item.add", func(ctx context.Context, tx Tx, inv Invoice) (Invoice, error) {
		item := newItem(inv, spec)
		if inv.Type == TypeProvider && item.ProviderID == 0 {
			item.ProviderID = inv.ToProviderID
		}
		if _, err := tx.Invoices().InsertItems(ctx, []Item{item}); err != nil {
			return Invoice{}, fmt.Errorf("invoices: insert item: %w", err)
		}
		return inv, nil
	})
}

// UpdateItem replaces quantity, price, discount or provider of a line.
func (e *Engine) UpdateItem(ctx context.Context, caller shared.Caller, invoiceID, itemID int64, spec ItemSpec) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	return e.editInvoice(ctx, caller, invoiceID, "invoice.item.update", func(ctx context.Context, tx Tx, inv Invoice) (Invoice, error) {
		item, err := tx.Invoices().GetItem(ctx, inv.CompanyID, inv.ID, itemID)
		if err != nil {
			return Invoice{}, err
		}
		if spec.ProductID == 0 {
			spec.ProductID = item.ProductID
		}
		if spec.ProviderID == 0 {
			spec.ProviderID = item.ProviderID
		}
		if err := validateItemSpec(0, spec); err != nil {
			return Invoice{}, err
		}
		updated := newItem(inv, spec)
		updated.ID = item.ID
		if _, err := tx.Invoices().UpdateItem(ctx, updated); err != nil {
			return Invoice{}, fmt.Errorf("invoices: update item: %w", err)
		}
		return inv, nil
	})
}

// RemoveItem deletes a line.
func (e *Engine) RemoveItem(ctx context.Context, caller shared.Caller, invoiceID, itemID int64) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	return e.editInvoice(ctx, caller, invoiceID, "invoice.item.remove", func(ctx context.Context, tx Tx, inv Invoice) (Invoice, error) {
		if err := tx.Invoices().DeleteItem(ctx, inv.CompanyID, inv.ID, itemID); err != nil {
			return Invoice{}, err
		}
		return inv, nil
	})
}

// UpdateDiscount sets or clears the invoice-level discount.
func (e *Engine) UpdateDiscount(ctx context.Context, caller shared.Caller, invoiceID int64, spec DiscountSpec) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	if err := validateDiscount(spec.Type, spec.Value); err != nil {
		return Detail{}, err
	}
	return e.editInvoice(ctx, caller, invoiceID, "invoice.discount.update", func(ctx context.Context, tx Tx, inv Invoice) (Invoice, error) {
		inv.DiscountType = spec.Type
		inv.DiscountValue = spec.Value.Round(2)
		if spec.Type == "" {
			inv.DiscountValue = decimal.Zero
		}
		return inv, nil
	})
}

func (e *Engine) editInvoice(ctx context.Context, caller shared.Caller, invoiceID int64, action string,
	edit func(context.Context, Tx, Invoice) (Invoice, error)) (Detail, error) {
	var detail Detail
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, caller.CompanyID, invoiceID)
		if err != nil {
			return err
		}
		inv, err = edit(ctx, tx, inv)
		if err != nil {
			return err
		}
		if _, err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		detail, err = loadDetail(ctx, tx, caller.CompanyID, invoiceID)
		return err
	})
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	e.afterCommit(ctx, caller, action, detail.ID, map[string]any{
		"total_amount": detail.TotalAmount.StringFixed(2),
		"due_amount":   detail.DueAmount.StringFixed(2),
	}, events.TypeInvoiceUpdated, detail.Invoice)
	return detail, nil
}

// RecordPayment applies a payment to an invoice and appends it in one transaction.
func (e *Engine) RecordPayment(ctx context.Context, caller shared.Caller, invoiceID int64, spec PaymentSpec) (Invoice, payments.Payment, error) {
	if caller.CompanyID == 0 {
		return Invoice{}, payments.Payment{}, shared.ErrUnauthorized
	}
	var (
		inv     Invoice
		payment payments.Payment
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		inv, payment, err = e.ApplyPayment(ctx, tx, caller, invoiceID, spec)
		return err
	})
	if err != nil {
		return Invoice{}, payments.Payment{}, shared.Classify(err)
	}
	e.PaymentCommitted(ctx, caller, inv, payment)
	return inv, payment, nil
}

// ApplyPayment is the in-transaction form of RecordPayment used by workflows
// that settle invoices as part of their own unit of work.
func (e *Engine) ApplyPayment(ctx context.Context, tx Tx, caller shared.Caller, invoiceID int64, spec PaymentSpec) (Invoice, payments.Payment, error) {
	amount := spec.Amount.Round(2)
	if !amount.IsPositive() {
		return Invoice{}, payments.Payment{}, shared.Validationf("invoices: payment amount must be greater than zero")
	}
	inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, caller.CompanyID, invoiceID)
	if err != nil {
		return Invoice{}, payments.Payment{}, err
	}
	if inv.PaidAmount.Add(amount).GreaterThan(inv.TotalAmount) {
		return Invoice{}, payments.Payment{}, fmt.Errorf("%w: payment %s exceeds due %s on invoice %s",
			shared.ErrPaymentExceedsBalance, amount.StringFixed(2), inv.DueAmount.StringFixed(2), inv.Number)
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.DueAmount = inv.TotalAmount.Sub(inv.PaidAmount)
	if err := inv.CheckBalance(); err != nil {
		return Invoice{}, payments.Payment{}, err
	}
	updated, err := tx.Invoices().UpdateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, payments.Payment{}, fmt.Errorf("invoices: update balance: %w", err)
	}
	payment, err := e.payments.Create(ctx, tx.Payments(), payments.Spec{
		CompanyID: caller.CompanyID,
		InvoiceID: invoiceID,
		ReturnID:  spec.ReturnID,
		Amount:    amount,
		Date:      spec.Date,
		Method:    spec.Method,
		Remarks:   spec.Remarks,
		CreatedBy: caller.UserID,
	})
	if err != nil {
		return Invoice{}, payments.Payment{}, err
	}
	return updated, payment, nil
}

// PaymentCommitted runs the post-commit side effects of a payment. Workflows
// calling ApplyPayment invoke it after their own commit.
func (e *Engine) PaymentCommitted(ctx context.Context, caller shared.Caller, inv Invoice, payment payments.Payment) {
	amount, _ := payment.Amount.Float64()
	e.metrics.PaymentRecorded(amount)
	e.afterCommit(ctx, caller, "payment.create", inv.ID, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount.StringFixed(2),
		"return_id":  payment.ReturnID,
		"due_amount": inv.DueAmount.StringFixed(2),
	}, events.TypePaymentRecorded, payment)
}

// Get returns an invoice with its items, bills and payments.
func (e *Engine) Get(ctx context.Context, companyID, id int64) (Detail, error) {
	if companyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	inv, err := e.store.GetInvoice(ctx, companyID, id)
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	d := Detail{Invoice: inv}
	if d.Items, err = e.store.ListItems(ctx, companyID, id); err != nil {
		return Detail{}, shared.Classify(err)
	}
	if d.Bills, err = e.store.ListBills(ctx, companyID, id); err != nil {
		return Detail{}, shared.Classify(err)
	}
	if d.Payments, err = e.payments.ListByInvoice(ctx, e.store, companyID, id); err != nil {
		return Detail{}, shared.Classify(err)
	}
	return normalizeDetail(d), nil
}

// List returns a page of invoices.
func (e *Engine) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.CompanyID == 0 {
		return Page{}, shared.ErrUnauthorized
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return Page{}, shared.Validationf("invoices: unknown type %q", filter.Type)
	}
	filter.Page = shared.NormalizePage(filter.Page.Page, filter.Page.Limit)
	page, err := e.store.ListInvoices(ctx, filter)
	return page, shared.Classify(err)
}

// ListPayments returns the payments applied to an invoice.
func (e *Engine) ListPayments(ctx context.Context, companyID, invoiceID int64) ([]payments.Payment, error) {
	if companyID == 0 {
		return nil, shared.ErrUnauthorized
	}
	if _, err := e.store.GetInvoice(ctx, companyID, invoiceID); err != nil {
		return nil, shared.Classify(err)
	}
	out, err := e.payments.ListByInvoice(ctx, e.store, companyID, invoiceID)
	if err != nil {
		return nil, shared.Classify(err)
	}
	if out == nil {
		out = []payments.Payment{}
	}
	return out, nil
}

func (e *Engine) notifyStock(ctx context.Context, companyID int64) {
	if e.stock != nil {
		e.stock.InvalidateStock(ctx, companyID)
	}
}

// afterCommit writes the audit entry and publishes the domain event. Both are
// best effort: the unit of work is already committed.
func (e *Engine) afterCommit(ctx context.Context, caller shared.Caller, action string, invoiceID int64, meta map[string]any, eventType events.Type, payload any) {
	if e.audit != nil {
		if err := e.audit.Record(ctx, shared.AuditLog{
			CompanyID: caller.CompanyID,
			ActorID:   caller.UserID,
			Action:    action,
			Entity:    "invoice",
			EntityID:  strconv.FormatInt(invoiceID, 10),
			Meta:      meta,
			At:        e.now(),
		}); err != nil {
			e.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	if err := e.publisher.Publish(ctx, events.New(eventType, caller.CompanyID, invoiceID, payload)); err != nil {
		e.logger.Warn("event publish failed", slog.String("event", string(eventType)), slog.Any("error", err))
	}
}

// newItem rounds prices and discounts to the two decimals storage keeps, so
// totals match whichever backend reloads them.
func newItem(inv Invoice, spec ItemSpec) Item {
	price := spec.UnitPrice.Round(2)
	discount := spec.DiscountPercent.Round(2)
	return Item{
		CompanyID:       inv.CompanyID,
		InvoiceID:       inv.ID,
		ProductID:       spec.ProductID,
		ProviderID:      spec.ProviderID,
		Quantity:        spec.Quantity,
		UnitPrice:       price,
		DiscountPercent: discount,
		LineTotal:       LineTotal(spec.Quantity, price, discount),
	}
}

func loadDetail(ctx context.Context, tx Tx, companyID, invoiceID int64) (Detail, error) {
	inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, companyID, invoiceID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Invoice: inv}
	if d.Items, err = tx.Invoices().ListItems(ctx, companyID, invoiceID); err != nil {
		return Detail{}, fmt.Errorf("invoices: list items: %w", err)
	}
	if d.Bills, err = tx.Invoices().ListBills(ctx, companyID, invoiceID); err != nil {
		return Detail{}, fmt.Errorf("invoices: list bills: %w", err)
	}
	if d.Payments, err = tx.Payments().ListByInvoice(ctx, companyID, invoiceID); err != nil {
		return Detail{}, fmt.Errorf("invoices: list payments: %w", err)
	}
	return normalizeDetail(d), nil
}

func normalizeDetail(d Detail) Detail {
	if d.Items == nil {
		d.Items = []Item{}
	}
	if d.Bills == nil {
		d.Bills = []Bill{}
	}
	if d.Payments == nil {
		d.Payments = []payments.Payment{}
	}
	return d
}
