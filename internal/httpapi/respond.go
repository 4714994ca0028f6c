package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/catalog"
	"github.com/shopcore/fulfillment/internal/inventory"
	"github.com/shopcore/fulfillment/internal/order"
	"github.com/shopcore/fulfillment/internal/payment"
	"github.com/shopcore/fulfillment/internal/pricing"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondDomainError translates domain errors into HTTP statuses with stable
// error codes. Unknown errors become opaque 500s so gateway internals never
// leak to clients.
func respondDomainError(w http.ResponseWriter, err error) {
	var couponErr *pricing.CouponInvalidError
	if errors.As(err, &couponErr) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   couponErr.Message,
			Code:    "coupon_invalid",
			Details: couponErr.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart has no active lines")
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(w, http.StatusNotFound, "line_not_found", "cart line not found")
	case errors.Is(err, order.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, payment.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found", "payment not found")
	case errors.Is(err, pricing.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, "coupon_not_found", "coupon not found")
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, inventory.ErrOutOfStock):
		respondError(w, http.StatusConflict, "out_of_stock", "insufficient stock")
	case errors.Is(err, order.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, order.ErrOrderNotCancellable):
		respondError(w, http.StatusConflict, "order_not_cancellable", err.Error())
	case errors.Is(err, payment.ErrOrderNotPayable):
		respondError(w, http.StatusConflict, "order_not_payable", err.Error())
	case errors.Is(err, payment.ErrAmountMismatch):
		respondError(w, http.StatusUnprocessableEntity, "amount_mismatch", err.Error())
	case errors.Is(err, payment.ErrFraudBlocked):
		respondError(w, http.StatusPaymentRequired, "fraud_blocked", "payment was blocked")
	case errors.Is(err, payment.ErrPaymentDeclined):
		respondError(w, http.StatusPaymentRequired, "payment_declined", "payment was declined")
	case errors.Is(err, payment.ErrNotRefundable):
		respondError(w, http.StatusConflict, "not_refundable", err.Error())
	case errors.Is(err, payment.ErrGatewayTimeout):
		respondError(w, http.StatusGatewayTimeout, "gateway_timeout",
			"payment outcome unknown, retry with the same idempotency key")
	default:
		slog.Error("unhandled domain error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
