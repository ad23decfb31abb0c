package invoices

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const paymentIdempotencyModule = "invoices.payment"

// Handler exposes invoice endpoints.
type Handler struct {
	logger      *slog.Logger
	engine      *Engine
	validate    *validator.Validate
	idempotency shared.IdempotencyPort
}

// NewHandler constructs Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, engine *Engine, idempotency shared.IdempotencyPort) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New(), idempotency: idempotency}
}

// MountRoutes registers /invoices routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/with-items", h.get)
		r.Post("/items", h.addItem)
		r.Put("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Put("/discount", h.updateDiscount)
		r.Post("/payments", h.recordPayment)
		r.Get("/payments", h.listPayments)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.engine.CreateInvoice(r.Context(), caller, req.spec())
	if err != nil {
		h.fail(w, "create invoice failed", err)
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
		Type:      Type(r.URL.Query().Get("type")),
		Page:      httpx.QueryPage(r),
	}
	var err error
	if filter.ToProviderID, err = httpx.QueryInt64(r, "to_provider_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ToZoneID, err = httpx.QueryInt64(r, "to_zone_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list invoices failed", err)
		return
	}
	items := page.Items
	if items == nil {
		items = []Invoice{}
	}
	httpx.Page(w, items, shared.NewPagination(filter.Page.Page, filter.Page.Limit, page.Total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	detail, err := h.engine.Get(r.Context(), caller.CompanyID, id)
	if err != nil {
		h.fail(w, "get invoice failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req ItemRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.engine.AddItem(r.Context(), caller, id, req.spec())
	if err != nil {
		h.fail(w, "add invoice item failed", err)
		return
	}
	httpx.OK(w, http.StatusCreated, detail)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	itemID, err := httpx.URLInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ItemRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.engine.UpdateItem(r.Context(), caller, id, itemID, req.spec())
	if err != nil {
		h.fail(w, "update invoice item failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	itemID, err := httpx.URLInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.engine.RemoveItem(r.Context(), caller, id, itemID)
	if err != nil {
		h.fail(w, "remove invoice item failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req DiscountRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.engine.UpdateDiscount(r.Context(), caller, id, DiscountSpec{
		Type:  DiscountType(req.DiscountType),
		Value: req.DiscountValue,
	})
	if err != nil {
		h.fail(w, "update invoice discount failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if _, err := uuid.Parse(key); err != nil {
			httpx.RespondError(w, shared.Validationf("Idempotency-Key must be a UUID"))
			return
		}
		if err := h.idempotency.CheckAndInsert(r.Context(), key, paymentIdempotencyModule); err != nil {
			h.fail(w, "payment idempotency check failed", shared.Classify(err))
			return
		}
	}

	inv, payment, err := h.engine.RecordPayment(r.Context(), caller, id, req.spec())
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key failed", slog.Any("error", derr))
			}
		}
		h.fail(w, "record payment failed", err)
		return
	}
	httpx.OK(w, http.StatusCreated, map[string]any{"invoice": inv, "payment": payment})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.target(w, r)
	if !ok {
		return
	}
	out, err := h.engine.ListPayments(r.Context(), caller.CompanyID, id)
	if err != nil {
		h.fail(w, "list payments failed", err)
		return
	}
	httpx.OK(w, http.StatusOK, out)
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
