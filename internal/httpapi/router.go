package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter assembles the public HTTP surface.
func NewRouter(carts CartService, orders OrderService, payments PaymentService) http.Handler {
	cartHandler := NewCartHandler(carts)
	orderHandler := NewOrderHandler(orders)
	paymentHandler := NewPaymentHandler(payments)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(MockAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/items/{product_id}/save", cartHandler.MoveToSaved)
			r.Post("/items/{product_id}/unsave", cartHandler.MoveFromSaved)
			r.Post("/coupon", cartHandler.ApplyCoupon)
			r.Delete("/coupon", cartHandler.RemoveCoupon)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Checkout)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{order_id}", orderHandler.GetOrder)
			r.Get("/number/{number}", orderHandler.GetOrderByNumber)
			r.Patch("/{order_id}/status", orderHandler.UpdateStatus)
			r.Post("/{order_id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentHandler.ProcessPayment)
			r.Post("/{payment_id}/refund", paymentHandler.RefundPayment)
		})
	})

	return otelhttp.NewHandler(r, "fulfillment-api")
}
