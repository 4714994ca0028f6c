package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopcore/fulfillment/internal/order"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]*order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next order.Status) (*order.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type CheckoutRequestDTO struct {
	PaymentMethod   string        `json:"payment_method"`
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method must not be empty")
		return
	}
	if req.ShippingAddress.Street == "" || req.ShippingAddress.Country == "" {
		respondError(w, http.StatusBadRequest, "invalid_address", "shipping address is incomplete")
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		UserID:          userID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if number == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_number", "order number must not be empty")
		return
	}

	o, err := h.orders.GetOrderByNumber(r.Context(), number)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListUserOrders(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must not be empty")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, order.Status(req.Status))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
