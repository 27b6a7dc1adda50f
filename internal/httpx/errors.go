package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"net/http"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error kinds onto status codes. Unknown errors are 500
// and their text is not echoed.
func writeError(w http.ResponseWriter, err error) {
	var ise *orders.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		avail := ise.Available
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     err.Error(),
			Code:      "insufficient_stock",
			ProductID: ise.ProductID,
			Requested: ise.Requested,
			Available: &avail,
		})
	case errors.Is(err, orders.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, orders.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "write conflict, retry later", Code: "conflict"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
