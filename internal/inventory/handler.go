package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for stock and ledger reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listStock)
	r.Get("/reconcile", h.reconcile)
}

// MountTransactionRoutes registers /inventory-transactions routes.
func (h *Handler) MountTransactionRoutes(r chi.Router) {
	r.Get("/", h.listTransactions)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filter := StockFilter{CompanyID: caller.CompanyID, Page: httpx.QueryPage(r)}
	var err error
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ProviderID, err = httpx.QueryInt64(r, "provider_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListStock(r.Context(), filter)
	if err != nil {
		h.fail(w, "list stock failed", err)
		return
	}
	items := page.Items
	if items == nil {
		items = []Stock{}
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page.Page, filter.Page.Limit, page.Total))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Reconcile(r.Context(), caller.CompanyID, productID)
	if err != nil {
		h.fail(w, "reconcile failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, rec)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filter := TransactionFilter{
		CompanyID: caller.CompanyID,
		Type:      TransactionType(r.URL.Query().Get("transaction_type")),
		Page:      httpx.QueryPage(r),
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		httpx.RespondError(w, shared.Validationf("invalid transaction_type %q", filter.Type))
		return
	}
	for name, dst := range map[string]*int64{
		"invoice_id":  &filter.InvoiceID,
		"return_id":   &filter.ReturnID,
		"product_id":  &filter.ProductID,
		"provider_id": &filter.ProviderID,
	} {
		v, err := httpx.QueryInt64(r, name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		*dst = v
	}
	page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, "list inventory transactions failed", err)
		return
	}
	items := page.Items
	if items == nil {
		items = []Transaction{}
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page.Page, filter.Page.Limit, page.Total))
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
