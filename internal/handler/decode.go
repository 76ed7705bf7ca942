package handler

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
	"github.com/xenking/outlet-commerce/internal/domain/order"
)

const maxBodySize = 1 << 20

// badRequestError marks a body that could not be decoded or is missing a
// required field. Only msg is shown to clients; err is logged.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// decodeObject walks the top-level JSON object of the request body.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodySize), 4096)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if err := field(d, string(key)); err != nil {
			var bad *badRequestError
			if errors.As(err, &bad) {
				return err
			}
			return &badRequestError{msg: "invalid value for " + strconv.Quote(string(key)), err: err}
		}
		return nil
	}); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return bad
		}
		return &badRequestError{msg: "malformed request body", err: err}
	}
	return nil
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDeliveryCharge accepts a JSON number or a numeric string. Any other
// value, including NaN and infinities, counts as no charge.
func decodeDeliveryCharge(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		return decimal.Zero, d.Skip()
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, nil
	}
	return v, nil
}

// decodeItems reads [{"_id": "...", "quantity": n}]. "productId" is accepted
// as an alias of "_id".
func decodeItems(d *jx.Decoder) ([]catalog.LineItem, error) {
	var items []catalog.LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var item catalog.LineItem
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "_id", "productId":
				item.ProductID, err = d.Str()
			case "quantity":
				item.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func decodeCreateOrder(w http.ResponseWriter, r *http.Request) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case "products":
			req.Items, err = decodeItems(d)
			return err
		case "deliveryCharge":
			req.DeliveryCharge, err = decodeDeliveryCharge(d)
			return err
		case "customerId", "customer", "email", "phoneNumber", "firstName", "lastName",
			"couponName", "deliveryAddress", "city", "area", "district", "orderType",
			"paymentMethod", "transactionId", "channel", "customerIp", "outlet", "orderNote":
			if s, err = decodeString(d); err != nil {
				return err
			}
		default:
			return d.Skip()
		}

		switch key {
		case "customerId", "customer":
			req.Customer.ID = s
		case "email":
			req.Customer.Email = s
		case "phoneNumber":
			req.Customer.Phone = s
		case "firstName":
			req.FirstName = s
		case "lastName":
			req.LastName = s
		case "couponName":
			req.CouponCode = s
		case "deliveryAddress":
			req.DeliveryAddress = s
		case "city":
			req.City = s
		case "area":
			req.Area = s
		case "district":
			req.District = s
		case "orderType":
			req.Type = order.Type(s)
		case "paymentMethod":
			req.PaymentMethod = order.PaymentMethod(s)
		case "transactionId":
			req.TransactionID = s
		case "channel":
			req.Channel = order.Channel(s)
		case "customerIp":
			req.CustomerIP = s
		case "outlet":
			req.OutletID = s
		case "orderNote":
			req.Note = s
		}
		return nil
	})
	if err != nil {
		return req, err
	}

	switch {
	case req.Type == "":
		req.Type = order.TypeDelivery
	case !req.Type.Valid():
		return req, badRequest("invalid orderType")
	}
	switch {
	case req.PaymentMethod == "":
		req.PaymentMethod = order.PaymentCashOnDelivery
	case !req.PaymentMethod.Valid():
		return req, badRequest("invalid paymentMethod")
	}
	switch {
	case req.Channel == "":
		req.Channel = order.ChannelWeb
	case !req.Channel.Valid():
		return req, badRequest("invalid channel")
	}
	if req.CustomerIP == "" {
		req.CustomerIP = remoteIP(r)
	}
	return req, nil
}

func decodeQuote(w http.ResponseWriter, r *http.Request) (order.QuoteRequest, error) {
	var req order.QuoteRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "products":
			req.Items, err = decodeItems(d)
		case "deliveryCharge":
			req.DeliveryCharge, err = decodeDeliveryCharge(d)
		case "customerId", "customer":
			req.Customer.ID, err = decodeString(d)
		case "email":
			req.Customer.Email, err = decodeString(d)
		case "phoneNumber":
			req.Customer.Phone, err = decodeString(d)
		case "couponName":
			req.CouponCode, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// decodePage reads the optional limit and offset query parameters.
func decodePage(r *http.Request) (order.ListFilter, error) {
	var f order.ListFilter
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, badRequest("invalid " + p.name)
		}
		*p.dst = n
	}
	return f, nil
}

// decodeField reads a single required string field from the body.
func decodeField(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	var (
		v     string
		found bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		if d.Next() != jx.String {
			return badRequest("invalid " + name)
		}
		found = true
		var err error
		v, err = d.Str()
		return err
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", badRequest(name + " is required")
	}
	return v, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
