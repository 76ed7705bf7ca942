// Package handler exposes the order service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/outlet-commerce/internal/domain/order"
	"github.com/xenking/outlet-commerce/internal/idempotency"
)

// Config holds optional collaborators of the Handler.
type Config struct {
	// Idempotency guards order creation when set.
	Idempotency idempotency.Store
}

// Handler serves the order and discount endpoints.
type Handler struct {
	orders *order.Service
	idem   idempotency.Store
}

// New creates a Handler delegating to the order service.
func New(cfg Config, orders *order.Service) *Handler {
	return &Handler{
		orders: orders,
		idem:   cfg.Idempotency,
	}
}

// Mount registers all routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/order", func(r chi.Router) {
		create := r
		if h.idem != nil {
			create = r.With(idempotency.Middleware(h.idem, duplicateRequest))
		}
		create.Post("/orderCreate", h.createOrder)

		r.Get("/orders", h.listOrders)
		r.Get("/order-history/{customerId}", h.customerOrders)
		r.Get("/getOrderById/{id}", h.getOrder)
		r.Get("/customerHistory/{customerId}", h.customerHistory)
		r.Put("/updateNote/{id}", h.updateNote)
		r.Put("/changeOutletInfo/{id}", h.changeOutlet)
		r.Put("/{id}", h.updateStatus)
	})
	r.Post("/discount/quote", h.quote)
}

// Routes returns a router serving only the API routes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func duplicateRequest(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusConflict, "DuplicateRequest",
		"a request with this "+idempotency.Header+" was already processed")
}
