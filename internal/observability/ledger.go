package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger counts domain events: invoices, payments, returns and stock shortages.
type Ledger struct {
	invoices      *prometheus.CounterVec
	payments      prometheus.Counter
	paymentAmount prometheus.Counter
	shortages     prometheus.Counter
	returns       *prometheus.CounterVec
	mismatches    prometheus.Counter
}

// NewLedger registers the ledger counters on registerer, or on a private
// registry when it is nil.
func NewLedger(registerer prometheus.Registerer) *Ledger {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	l := &Ledger{
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_invoices_created_total",
			Help: "Invoices created, by invoice type.",
		}, []string{"type"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_payments_recorded_total",
			Help: "Payments recorded against invoices.",
		}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_payments_amount_total",
			Help: "Sum of recorded payment amounts.",
		}),
		shortages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_stock_shortages_total",
			Help: "Operations rejected for insufficient inventory.",
		}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_return_transitions_total",
			Help: "Return status transitions, by target status.",
		}, []string{"status"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_reconciliation_mismatches_total",
			Help: "Products whose ledger sum disagrees with stock on hand.",
		}),
	}
	registerer.MustRegister(l.invoices, l.payments, l.paymentAmount, l.shortages, l.returns, l.mismatches)
	return l
}

// InvoiceCreated counts one invoice of invoiceType.
func (l *Ledger) InvoiceCreated(invoiceType string) {
	if l == nil {
		return
	}
	l.invoices.WithLabelValues(invoiceType).Inc()
}

// PaymentRecorded counts one payment and adds its amount.
func (l *Ledger) PaymentRecorded(amount float64) {
	if l == nil {
		return
	}
	l.payments.Inc()
	if amount > 0 {
		l.paymentAmount.Add(amount)
	}
}

// StockShortage counts one shortage rejection.
func (l *Ledger) StockShortage() {
	if l == nil {
		return
	}
	l.shortages.Inc()
}

// ReturnTransition counts a return entering status.
func (l *Ledger) ReturnTransition(status string) {
	if l == nil {
		return
	}
	l.returns.WithLabelValues(status).Inc()
}

// ReconciliationMismatches adds count unbalanced products.
func (l *Ledger) ReconciliationMismatches(count int) {
	if l == nil || count <= 0 {
		return
	}
	l.mismatches.Add(float64(count))
}
