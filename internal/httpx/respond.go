package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/audiotailoc/commerce/internal/cart"
	"github.com/audiotailoc/commerce/internal/catalog"
	"github.com/audiotailoc/commerce/internal/inventory"
	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/payments"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error   string               `json:"error"`
	Code    string               `json:"code"`
	Details []inventory.Shortage `json:"details,omitempty"`
}

// writeError maps the domain error taxonomy onto stable HTTP codes.
func writeError(w http.ResponseWriter, err error) {
	var short *inventory.ShortageError
	if errors.As(err, &short) {
		writeJSON(w, http.StatusConflict, errBody{Error: short.Error(), Code: "INSUFFICIENT_STOCK", Details: short.Shortages})
		return
	}
	var provider *payments.ProviderError
	if errors.As(err, &provider) {
		writeJSON(w, http.StatusBadGateway, errBody{Error: provider.Error(), Code: "PROVIDER_ERROR"})
		return
	}

	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, payments.ErrIntentNotFound):
		writeJSON(w, http.StatusNotFound, errBody{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error(), Code: "EMPTY_CART"})
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error(), Code: "INVALID_QUANTITY"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error(), Code: "INVALID_TRANSITION"})
	case errors.Is(err, payments.ErrOrderAlreadyPaid):
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error(), Code: "ORDER_ALREADY_PAID"})
	case errors.Is(err, payments.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error(), Code: "INVALID_SIGNATURE"})
	case errors.Is(err, payments.ErrUnsupportedProvider):
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error(), Code: "UNSUPPORTED_PROVIDER"})
	default:
		writeJSON(w, http.StatusInternalServerError, errBody{Error: err.Error(), Code: "INTERNAL"})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errBody{Error: msg, Code: "BAD_REQUEST"})
}
