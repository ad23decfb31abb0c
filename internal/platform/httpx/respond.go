package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Envelope is the response body shape shared by every endpoint.
type Envelope struct {
	Success  bool               `json:"success"`
	Result   any                `json:"result,omitempty"`
	PageInfo *shared.Pagination `json:"page_info,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK wraps result in a success envelope.
func OK(w http.ResponseWriter, status int, result any) {
	JSON(w, status, Envelope{Success: true, Result: result})
}

// Page wraps a list result with its pagination block.
func Page(w http.ResponseWriter, result any, info shared.Pagination) {
	JSON(w, http.StatusOK, Envelope{Success: true, Result: result, PageInfo: &info})
}

// Fail sends the failure envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
