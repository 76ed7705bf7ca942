package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeResult writes {"message": msg, <field>: ...} with status 200.
func writeResult(w http.ResponseWriter, msg, field string, body func(e *jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.FieldStart(field)
	body(&e)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("kind")
	e.Str(kind)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, code, &e)
}

func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	e.Num(jx.Num(d.StringFixed(2)))
}

func str(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

// optStr skips empty values.
func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	str(e, "orderId", o.Number)
	str(e, "customer", o.CustomerID)
	str(e, "firstName", o.FirstName)
	str(e, "lastName", o.LastName)
	optStr(e, "email", o.Email)
	optStr(e, "phoneNumber", o.Phone)

	e.FieldStart("products")
	e.ArrStart()
	for _, l := range o.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()

	optStr(e, "coupon", o.CouponID)
	optStr(e, "couponName", o.CouponCode)
	money(e, "subtotal", o.Subtotal)
	money(e, "discountAmount", o.Discount)
	money(e, "deliveryCharge", o.DeliveryCharge)
	money(e, "vatRate", o.VATRate)
	money(e, "vat", o.VAT)
	money(e, "totalPrice", o.Total)

	str(e, "orderStatus", string(o.Status))
	str(e, "orderNote", o.Note)
	optStr(e, "outlet", o.OutletID)
	str(e, "orderType", string(o.Type))
	str(e, "paymentMethod", string(o.PaymentMethod))
	optStr(e, "transactionId", o.TransactionID)
	str(e, "channel", string(o.Channel))
	optStr(e, "customerIp", o.CustomerIP)
	optStr(e, "deliveryAddress", o.DeliveryAddress)
	optStr(e, "city", o.City)
	optStr(e, "area", o.Area)
	optStr(e, "district", o.District)
	str(e, "orderTime", o.CreatedAt.UTC().Format(time.RFC3339))
	str(e, "updatedAt", o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.ObjStart()
	str(e, "_id", l.ProductID)
	str(e, "productName", l.Name)
	optStr(e, "sku", l.SKU)
	optStr(e, "productImage", l.Image)
	money(e, "price", l.RegularPrice)
	if l.SalePrice.Valid {
		money(e, "offerPrice", l.SalePrice.Decimal)
	}
	money(e, "unitPrice", l.UnitPrice)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	money(e, "lineTotal", l.LineTotal)
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	optStr(e, "couponName", q.CouponCode)
	money(e, "discount", q.Discount)
	money(e, "totalPrice", q.Subtotal)
	money(e, "discountedPrice", q.DiscountedPrice())
	money(e, "deliveryCharge", q.DeliveryCharge)
	money(e, "vat", q.VAT)
	money(e, "finalPrice", q.Total)

	e.FieldStart("products")
	e.ArrStart()
	for _, l := range q.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeSummary(e *jx.Encoder, s *order.Summary) {
	e.ObjStart()
	str(e, "customer", s.CustomerID)
	e.FieldStart("totalOrders")
	e.Int(s.TotalOrders)
	money(e, "averageOrderValue", s.AverageOrderValue)
	e.ObjEnd()
}
