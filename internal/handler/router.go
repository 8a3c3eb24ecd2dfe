package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/gopherfood/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware ядра заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/menu", h.Menu)
		r.Get("/menu/{itemID}", h.MenuItem)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/user", func(r chi.Router) {
				r.Get("/cart", h.GetCart)
				r.Delete("/cart", h.ClearCart)
				r.Post("/cart/items", h.AddCartItem)
				r.Patch("/cart/items/{lineID}", h.AdjustCartLine)
				r.Delete("/cart/items/{lineID}", h.RemoveCartLine)
				r.Put("/cart/promo", h.ApplyPromo)
				r.Delete("/cart/promo", h.RemovePromo)
				r.Post("/cart/checkout", h.Checkout)

				r.Get("/orders", h.GetOrders)
				r.Get("/orders/{orderID}", h.GetOrder)
				r.Post("/orders/{orderID}/cancel", h.CancelOrder)
				r.Post("/orders/{orderID}/payment", h.RecordPayment)

				r.Get("/balance", h.GetBalance)
				r.Get("/loyalty/events", h.GetLoyaltyEvents)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireAdmin)

				r.Post("/menu", h.CreateMenuItem)
				r.Put("/menu/{itemID}", h.UpdateMenuItem)

				r.Get("/promo", h.ListPromos)
				r.Post("/promo", h.CreatePromo)
				r.Delete("/promo/{code}", h.DeactivatePromo)

				r.Get("/orders", h.ListOrdersByStatus)
				r.Post("/orders/{orderID}/status", h.TransitionOrder)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
