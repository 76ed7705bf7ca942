package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func testOrder() order.Order {
	return order.Order{
		ID:         "o-1",
		Number:     "ORD-0001-20250307",
		CustomerID: "c-1",
		Status:     order.StatusConfirmed,
		CouponCode: "SAVE10",
		Subtotal:   decimal.RequireFromString("200"),
		Discount:   decimal.RequireFromString("20"),
		Total:      decimal.RequireFromString("230"),
		Lines: []order.Line{
			{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.RequireFromString("100")},
		},
		UpdatedAt: time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishOrder(t *testing.T) {
	w := &recordingWriter{}
	p := &Publisher{w: w}

	require.NoError(t, p.PublishOrder(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	require.NotEmpty(t, msg.Headers)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, "order.changed", string(msg.Headers[0].Value))
}

func TestPublishOrder_WriteError(t *testing.T) {
	p := &Publisher{w: &recordingWriter{err: errors.New("broker down")}}
	require.Error(t, p.PublishOrder(context.Background(), testOrder()))
}

func TestEncode(t *testing.T) {
	fields := map[string]string{}
	var items int
	err := jx.DecodeBytes(Encode(testOrder())).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "items" {
			return d.Arr(func(d *jx.Decoder) error {
				items++
				return d.Skip()
			})
		}
		v, err := d.Str()
		fields[string(key)] = v
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, items)
	assert.Equal(t, "ORD-0001-20250307", fields["number"])
	assert.Equal(t, "Confirmed", fields["status"])
	assert.Equal(t, "SAVE10", fields["coupon_code"])
	assert.Equal(t, "230.00", fields["total"])
	assert.Equal(t, "2025-03-07T10:00:00Z", fields["updated_at"])
	assert.NotContains(t, fields, "outlet_id")
}
