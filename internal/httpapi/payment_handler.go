package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/payment"
)

type PaymentService interface {
	ProcessPayment(ctx context.Context, req payment.ChargeRequest) (*payment.Payment, error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*payment.Payment, error)
}

type PaymentHandler struct {
	payments PaymentService
}

func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type ProcessPaymentRequestDTO struct {
	OrderID uuid.UUID       `json:"order_id"`
	Method  string          `json:"method"`
	Amount  decimal.Decimal `json:"amount"`
}

type RefundRequestDTO struct {
	Reason string `json:"reason"`
}

func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ProcessPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.OrderID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}
	if req.Method == "" {
		respondError(w, http.StatusBadRequest, "invalid_method", "method must not be empty")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}

	p, err := h.payments.ProcessPayment(r.Context(), payment.ChargeRequest{
		OrderID:        req.OrderID,
		Method:         req.Method,
		Amount:         req.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		// Declined and fraud-blocked attempts still produce a payment record
		// worth returning, so these map by hand rather than via the shared
		// error table.
		if p != nil && (errors.Is(err, payment.ErrPaymentDeclined) || errors.Is(err, payment.ErrFraudBlocked)) {
			respondJSON(w, http.StatusPaymentRequired, p)
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "payment_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_id", "payment_id must be a UUID")
		return
	}

	var req RefundRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	refund, err := h.payments.RefundPayment(r.Context(), paymentID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, refund)
}
