package returns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/stockledger/internal/events"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/payments"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Options groups optional collaborators of Workflow.
type Options struct {
	Policy    ProviderPolicy
	Audit     shared.AuditPort
	Publisher events.Publisher
	Stock     invoices.StockNotifier
	Metrics   *observability.Ledger
	Logger    *slog.Logger
}

// Workflow drives the PENDING → APPROVED/REJECTED return state machine.
type Workflow struct {
	store     Store
	engine    *invoices.Engine
	accessor  *inventory.Accessor
	ledger    *inventory.Recorder
	policy    ProviderPolicy
	audit     shared.AuditPort
	publisher events.Publisher
	stock     invoices.StockNotifier
	metrics   *observability.Ledger
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorkflow builds Workflow. The engine settles return-linked payments.
func NewWorkflow(store Store, engine *invoices.Engine, opts Options) *Workflow {
	w := &Workflow{
		store:     store,
		engine:    engine,
		accessor:  inventory.NewAccessor(),
		ledger:    inventory.NewRecorder(),
		policy:    opts.Policy,
		audit:     opts.Audit,
		publisher: opts.Publisher,
		stock:     opts.Stock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if w.policy == nil {
		w.policy = FirstHolderPolicy{}
	}
	if w.publisher == nil {
		w.publisher = events.Noop{}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// CreateReturn records a PENDING return against a ZONE invoice. When a
// payment amount is given it is applied to the invoice in the same
// transaction. Stock is untouched until approval.
func (w *Workflow) CreateReturn(ctx context.Context, caller shared.Caller, spec CreateSpec) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	if err := validateCreate(spec); err != nil {
		return Detail{}, err
	}

	var (
		detail  Detail
		inv     invoices.Invoice
		payment payments.Payment
	)
	err := w.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		inv, err = tx.Invoices().GetInvoiceForUpdate(ctx, caller.CompanyID, spec.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Type != invoices.TypeZone {
			return shared.Validationf("returns: invoice %s is not a ZONE invoice", inv.Number)
		}
		if spec.ZoneID == 0 {
			spec.ZoneID = inv.ToZoneID
		}
		if spec.ZoneID != inv.ToZoneID {
			return shared.Validationf("returns: zone %d does not match invoice zone %d", spec.ZoneID, inv.ToZoneID)
		}
		if err := w.checkReturnable(ctx, tx, inv, spec.Items); err != nil {
			return err
		}

		ret, err := tx.Returns().InsertReturn(ctx, Return{
			CompanyID:         caller.CompanyID,
			InvoiceID:         inv.ID,
			ZoneID:            spec.ZoneID,
			Status:            StatusPending,
			TotalReturnAmount: spec.TotalReturnAmount,
			PaymentAmount:     spec.PaymentAmount,
			Reason:            spec.Reason,
			CreatedBy:         caller.UserID,
		})
		if err != nil {
			return fmt.Errorf("returns: insert return: %w", err)
		}
		items := make([]Item, 0, len(spec.Items))
		for _, it := range spec.Items {
			items = append(items, Item{
				CompanyID:        caller.CompanyID,
				ReturnID:         ret.ID,
				ProductID:        it.ProductID,
				ReturnedQuantity: it.ReturnedQuantity,
				UnitPrice:        it.UnitPrice,
				ReturnAmount:     it.ReturnAmount,
			})
		}
		if items, err = tx.Returns().InsertItems(ctx, items); err != nil {
			return fmt.Errorf("returns: insert items: %w", err)
		}

		if spec.PaymentAmount.Valid {
			inv, payment, err = w.engine.ApplyPayment(ctx, tx, caller, inv.ID, invoices.PaymentSpec{
				Amount:   spec.PaymentAmount.Decimal,
				Remarks:  "Payment on return #" + strconv.FormatInt(ret.ID, 10),
				ReturnID: ret.ID,
			})
			if err != nil {
				return err
			}
		}
		detail = Detail{Return: ret, Items: items}
		return nil
	})
	if err != nil {
		return Detail{}, shared.Classify(err)
	}

	w.metrics.ReturnTransition(string(StatusPending))
	if spec.PaymentAmount.Valid {
		w.engine.PaymentCommitted(ctx, caller, inv, payment)
	}
	w.afterCommit(ctx, caller, "return.create", detail, events.TypeReturnCreated)
	return detail, nil
}

// checkReturnable caps returned quantity per product at the invoiced quantity
// minus what other non-rejected returns already claim.
func (w *Workflow) checkReturnable(ctx context.Context, tx Tx, inv invoices.Invoice, specs []ItemSpec) error {
	lines, err := tx.Invoices().ListItems(ctx, inv.CompanyID, inv.ID)
	if err != nil {
		return fmt.Errorf("returns: list invoice items: %w", err)
	}
	invoiced := make(map[int64]int64)
	for _, l := range lines {
		invoiced[l.ProductID] += l.Quantity
	}
	claimed, err := tx.Returns().ReturnedQuantities(ctx, inv.CompanyID, inv.ID)
	if err != nil {
		return fmt.Errorf("returns: load returned quantities: %w", err)
	}
	requested := make(map[int64]int64)
	for _, it := range specs {
		requested[it.ProductID] += it.ReturnedQuantity
	}
	for productID, qty := range requested {
		available, ok := invoiced[productID]
		if !ok {
			return shared.Validationf("returns: product %d is not on invoice %s", productID, inv.Number)
		}
		if remaining := available - claimed[productID]; qty > remaining {
			return shared.Validationf("returns: product %d return quantity %d exceeds returnable %d", productID, qty, remaining)
		}
	}
	return nil
}

// ApproveReturn restores stock for every item and marks the return APPROVED.
func (w *Workflow) ApproveReturn(ctx context.Context, caller shared.Caller, id int64) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	var detail Detail
	err := w.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		ret, err := tx.Returns().GetReturnForUpdate(ctx, caller.CompanyID, id)
		if err != nil {
			return err
		}
		if !ret.Status.CanApprove() {
			return fmt.Errorf("%w: return %d is %s", shared.ErrInvalidState, ret.ID, ret.Status)
		}
		items, err := tx.Returns().ListItems(ctx, caller.CompanyID, ret.ID)
		if err != nil {
			return fmt.Errorf("returns: list items: %w", err)
		}
		// Each line is recorded before the next is allocated so repeated
		// products see the credits already given on this return.
		for _, it := range items {
			allocations, err := w.policy.Allocate(ctx, tx.Inventory(), ret, it)
			if err != nil {
				return err
			}
			entries := make([]inventory.Transaction, 0, len(allocations))
			for _, a := range allocations {
				if _, err := w.accessor.Increase(ctx, tx.Inventory(), inventory.Movement{
					CompanyID:  ret.CompanyID,
					ProductID:  it.ProductID,
					ProviderID: a.ProviderID,
					Quantity:   a.Quantity,
					UnitPrice:  it.UnitPrice,
				}); err != nil {
					return err
				}
				entries = append(entries, inventory.Transaction{
					CompanyID:  ret.CompanyID,
					ProductID:  it.ProductID,
					Type:       inventory.TransactionTypeReturn,
					Quantity:   inventory.SignedQuantity(inventory.TransactionTypeReturn, a.Quantity),
					UnitPrice:  it.UnitPrice,
					InvoiceID:  ret.InvoiceID,
					ReturnID:   ret.ID,
					ProviderID: a.ProviderID,
					ZoneID:     ret.ZoneID,
					Remarks:    "Returned on return #" + strconv.FormatInt(ret.ID, 10),
					CreatedBy:  caller.UserID,
				})
			}
			if _, err := w.ledger.RecordBulk(ctx, tx.Inventory(), entries); err != nil {
				return err
			}
		}

		now := w.now()
		ret.Status = StatusApproved
		ret.ApprovedBy = caller.UserID
		ret.ApprovedAt = &now
		if ret, err = tx.Returns().UpdateStatus(ctx, ret); err != nil {
			return fmt.Errorf("returns: update status: %w", err)
		}
		detail = Detail{Return: ret, Items: items}
		return nil
	})
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	w.metrics.ReturnTransition(string(StatusApproved))
	if w.stock != nil {
		w.stock.InvalidateStock(ctx, caller.CompanyID)
	}
	w.afterCommit(ctx, caller, "return.approve", detail, events.TypeReturnApproved)
	return detail, nil
}

// RejectReturn marks a PENDING return REJECTED with no other effect.
func (w *Workflow) RejectReturn(ctx context.Context, caller shared.Caller, id int64) (Detail, error) {
	if caller.CompanyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	var detail Detail
	err := w.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		ret, err := tx.Returns().GetReturnForUpdate(ctx, caller.CompanyID, id)
		if err != nil {
			return err
		}
		if !ret.Status.CanReject() {
			return fmt.Errorf("%w: return %d is %s", shared.ErrInvalidState, ret.ID, ret.Status)
		}
		now := w.now()
		ret.Status = StatusRejected
		ret.RejectedBy = caller.UserID
		ret.RejectedAt = &now
		if ret, err = tx.Returns().UpdateStatus(ctx, ret); err != nil {
			return fmt.Errorf("returns: update status: %w", err)
		}
		items, err := tx.Returns().ListItems(ctx, caller.CompanyID, ret.ID)
		if err != nil {
			return fmt.Errorf("returns: list items: %w", err)
		}
		detail = Detail{Return: ret, Items: items}
		return nil
	})
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	w.metrics.ReturnTransition(string(StatusRejected))
	w.afterCommit(ctx, caller, "return.reject", detail, events.TypeReturnRejected)
	return detail, nil
}

// Get returns a return with its items.
func (w *Workflow) Get(ctx context.Context, companyID, id int64) (Detail, error) {
	if companyID == 0 {
		return Detail{}, shared.ErrUnauthorized
	}
	ret, err := w.store.GetReturn(ctx, companyID, id)
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	items, err := w.store.ListItems(ctx, companyID, id)
	if err != nil {
		return Detail{}, shared.Classify(err)
	}
	if items == nil {
		items = []Item{}
	}
	return Detail{Return: ret, Items: items}, nil
}

// List returns a page of returns.
func (w *Workflow) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.CompanyID == 0 {
		return Page{}, shared.ErrUnauthorized
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return Page{}, shared.Validationf("returns: unknown status %q", filter.Status)
	}
	filter.Page = shared.NormalizePage(filter.Page.Page, filter.Page.Limit)
	page, err := w.store.ListReturns(ctx, filter)
	return page, shared.Classify(err)
}

func (w *Workflow) afterCommit(ctx context.Context, caller shared.Caller, action string, detail Detail, eventType events.Type) {
	if w.audit != nil {
		err := w.audit.Record(ctx, shared.AuditLog{
			CompanyID: caller.CompanyID,
			ActorID:   caller.UserID,
			Action:    action,
			Entity:    "product_return",
			EntityID:  strconv.FormatInt(detail.ID, 10),
			Meta: map[string]any{
				"invoice_id":          detail.InvoiceID,
				"status":              detail.Status,
				"total_return_amount": detail.TotalReturnAmount.StringFixed(2),
			},
			At: w.now(),
		})
		if err != nil {
			w.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	if err := w.publisher.Publish(ctx, events.New(eventType, caller.CompanyID, detail.ID, detail)); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("event publish failed", slog.String("event", string(eventType)), slog.Any("error", err))
	}
}
