package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateOrder(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Order created successfully", "order", func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := decodeField(w, r, "orderStatus")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if status == "" {
		h.fail(w, r, badRequest("invalid orderStatus"))
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Order status updated", "order", func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Order fetched", "order", func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request) {
	note, err := decodeField(w, r, "orderNote")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateNote(r.Context(), chi.URLParam(r, "id"), note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Order note updated", "order", func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) changeOutlet(w http.ResponseWriter, r *http.Request) {
	outletID, err := decodeField(w, r, "outlet")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if outletID == "" {
		h.fail(w, r, badRequest("outlet is required"))
		return
	}
	o, err := h.orders.UpdateOutlet(r.Context(), chi.URLParam(r, "id"), outletID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Order outlet updated", "order", func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	sum, err := h.orders.CustomerHistory(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Customer order history", "orders", func(e *jx.Encoder) {
		encodeSummary(e, sum)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := decodePage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Orders fetched", "orders", func(e *jx.Encoder) {
		encodeOrders(e, orders)
	})
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	f, err := decodePage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.CustomerOrders(r.Context(), chi.URLParam(r, "customerId"), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Customer orders fetched", "orders", func(e *jx.Encoder) {
		encodeOrders(e, orders)
	})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuote(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, "Discount calculated", "quote", func(e *jx.Encoder) {
		encodeQuote(e, q)
	})
}
