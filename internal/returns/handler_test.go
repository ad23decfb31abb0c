package returns_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/returns"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func serve(t *testing.T, f fixture, method, path, body string) (int, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/returns", returns.NewHandler(slog.Default(), f.workflow).MountRoutes)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.ContextWithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestReturnHandlerLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	body := fmt.Sprintf(`{"invoice_id":%d,"total_return_amount":"800","reason":"expired",
		"items":[{"product_id":7,"returned_quantity":10,"unit_price":"80","return_amount":"800"}]}`, f.invoice.ID)
	code, out := serve(t, f, http.MethodPost, "/returns", body)
	require.Equal(t, http.StatusCreated, code, out["message"])
	result := out["result"].(map[string]any)
	require.Equal(t, "PENDING", result["status"])
	id := int64(result["id"].(float64))

	code, out = serve(t, f, http.MethodPut, fmt.Sprintf("/returns/%d/approve", id), "")
	require.Equal(t, http.StatusOK, code, out["message"])
	require.Equal(t, "APPROVED", out["result"].(map[string]any)["status"])

	code, out = serve(t, f, http.MethodPut, fmt.Sprintf("/returns/%d/reject", id), "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, false, out["success"])

	code, out = serve(t, f, http.MethodGet, "/returns?status=APPROVED", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out["result"], 1)

	code, _ = serve(t, f, http.MethodGet, "/returns?status=LOST", "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestReturnHandlerRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := serve(t, f, http.MethodPost, "/returns", `{"invoice_id":1,"items":[]}`)
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = serve(t, f, http.MethodPost, "/returns", `{"invoice_id":1,"bogus":true}`)
	require.Equal(t, http.StatusBadRequest, code)
}
