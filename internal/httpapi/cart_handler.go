package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shopcore/fulfillment/internal/cart"
)

// CartService is the slice of the cart service the handler needs.
type CartService interface {
	GetCart(ctx context.Context, userID int64) (*cart.Cart, error)
	AddItem(ctx context.Context, userID, productID, variantID int64, quantity int32) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID, variantID int64, quantity int32) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID, variantID int64) (*cart.Cart, error)
	MoveToSaved(ctx context.Context, userID, productID, variantID int64) (*cart.Cart, error)
	MoveFromSaved(ctx context.Context, userID, productID, variantID int64) (*cart.Cart, error)
	Clear(ctx context.Context, userID int64) error
	ApplyCoupon(ctx context.Context, userID int64, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context, userID int64) (*cart.Cart, error)
}

type CartHandler struct {
	carts CartService
}

func NewCartHandler(carts CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int32 `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	c, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID, variantID, ok := lineParams(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), userID, productID, variantID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID, variantID, ok := lineParams(w, r)
	if !ok {
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), userID, productID, variantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) MoveToSaved(w http.ResponseWriter, r *http.Request) {
	h.moveLine(w, r, h.carts.MoveToSaved)
}

func (h *CartHandler) MoveFromSaved(w http.ResponseWriter, r *http.Request) {
	h.moveLine(w, r, h.carts.MoveFromSaved)
}

func (h *CartHandler) moveLine(w http.ResponseWriter, r *http.Request, move func(context.Context, int64, int64, int64) (*cart.Cart, error)) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID, variantID, ok := lineParams(w, r)
	if !ok {
		return
	}

	c, err := move(r.Context(), userID, productID, variantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.carts.Clear(r.Context(), userID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ApplyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_coupon_code", "code must not be empty")
		return
	}

	c, err := h.carts.ApplyCoupon(r.Context(), userID, req.Code)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	c, err := h.carts.RemoveCoupon(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// lineParams pulls product_id from the path and the optional variant_id from
// the query string.
func lineParams(w http.ResponseWriter, r *http.Request) (productID, variantID int64, ok bool) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, 0, false
	}

	if variantStr := r.URL.Query().Get("variant_id"); variantStr != "" {
		variantID, err = strconv.ParseInt(variantStr, 10, 64)
		if err != nil || variantID < 0 {
			respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be a non-negative integer")
			return 0, 0, false
		}
	}

	return productID, variantID, true
}
