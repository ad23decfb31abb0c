package returns

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// CreateReturnRequest is the body of POST /returns.
type CreateReturnRequest struct {
	InvoiceID         int64               `json:"invoice_id" validate:"required,gt=0"`
	ZoneID            int64               `json:"zone_id" validate:"gte=0"`
	TotalReturnAmount decimal.Decimal     `json:"total_return_amount"`
	PaymentAmount     decimal.NullDecimal `json:"payment_amount"`
	Reason            string              `json:"reason" validate:"max=500"`
	Items             []ItemRequest       `json:"items" validate:"required,min=1,dive"`
}

// ItemRequest is one returned line.
type ItemRequest struct {
	ProductID        int64           `json:"product_id" validate:"required,gt=0"`
	ReturnedQuantity int64           `json:"returned_quantity" validate:"required,gte=1"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReturnAmount     decimal.Decimal `json:"return_amount"`
}

func (r CreateReturnRequest) spec() CreateSpec {
	spec := CreateSpec{
		InvoiceID:         r.InvoiceID,
		ZoneID:            r.ZoneID,
		TotalReturnAmount: r.TotalReturnAmount,
		PaymentAmount:     r.PaymentAmount,
		Reason:            r.Reason,
	}
	for _, it := range r.Items {
		spec.Items = append(spec.Items, ItemSpec{
			ProductID:        it.ProductID,
			ReturnedQuantity: it.ReturnedQuantity,
			UnitPrice:        it.UnitPrice,
			ReturnAmount:     it.ReturnAmount,
		})
	}
	return spec
}

// Handler exposes return endpoints.
type Handler struct {
	logger   *slog.Logger
	workflow *Workflow
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, workflow *Workflow) *Handler {
	return &Handler{logger: logger, workflow: workflow, validate: validator.New()}
}

// MountRoutes registers /returns routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}/approve", h.approve)
	r.Put("/{id}/reject", h.reject)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req CreateReturnRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.workflow.CreateReturn(r.Context(), caller, req.spec())
	if err != nil {
		h.fail(w, "create return failed", err)
		return
	}
	httpx.OK(w, http.StatusCreated, detail)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filter := ListFilter{
		CompanyID: caller.CompanyID,
		Status:    Status(r.URL.Query().Get("status")),
		Page:      httpx.QueryPage(r),
	}
	var err error
	if filter.InvoiceID, err = httpx.QueryInt64(r, "invoice_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ZoneID, err = httpx.QueryInt64(r, "zone_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list returns failed", err)
		return
	}
	items := page.Items
	if items == nil {
		items = []Return{}
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page.Page, filter.Page.Limit, page.Total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	detail, err := h.workflow.Get(r.Context(), caller.CompanyID, id)
	if err != nil {
		h.fail(w, "get return failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	detail, err := h.workflow.ApproveReturn(r.Context(), caller, id)
	if err != nil {
		h.fail(w, "approve return failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	detail, err := h.workflow.RejectReturn(r.Context(), caller, id)
	if err != nil {
		h.fail(w, "reject return failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (shared.Caller, int64, bool) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return shared.Caller{}, 0, false
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return shared.Caller{}, 0, false
	}
	return caller, id, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
