package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

type fakeSMS struct {
	mu    sync.Mutex
	fails int
	calls int
	sent  []string
}

func (f *fakeSMS) SendSMS(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, phone+"|"+text)
	return nil
}

type fakeEmail struct {
	mu   sync.Mutex
	err  error
	sent []Email
}

func (f *fakeEmail) SendEmail(_ context.Context, e Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(o order.Order) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + o.Number), nil
}

type fakeEvents struct {
	mu     sync.Mutex
	orders []order.Order
}

func (f *fakeEvents) PublishOrder(_ context.Context, o order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return nil
}

func testConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      16,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func testOrder() order.Order {
	return order.Order{
		ID:        "o-1",
		Number:    "ORD-0001-20250307",
		FirstName: "Rahim",
		LastName:  "Uddin",
		Email:     "rahim@example.com",
		Phone:     "01700000000",
		Status:    order.StatusReceived,
		Lines: []order.Line{
			{Name: "Tea", Quantity: 2, UnitPrice: decimal.RequireFromString("90")},
		},
		Discount: decimal.RequireFromString("20"),
		Total:    decimal.RequireFromString("230"),
	}
}

// runDispatcher enqueues through fn, then drains the queue.
func runDispatcher(t *testing.T, cfg Config, deps Deps, fn func(d *Dispatcher)) {
	t.Helper()

	d, err := NewDispatcher(zap.NewNop(), cfg, deps, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	fn(d)
	d.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}

func TestDispatcher_DeliversAllChannels(t *testing.T) {
	sms := &fakeSMS{}
	mail := &fakeEmail{}
	events := &fakeEvents{}
	deps := Deps{SMS: sms, Email: mail, Invoices: fakeRenderer{}, Events: events}

	runDispatcher(t, testConfig(), deps, func(d *Dispatcher) {
		d.OrderChanged(context.Background(), testOrder())
	})

	require.Len(t, sms.sent, 1)
	assert.True(t, strings.HasPrefix(sms.sent[0], "01700000000|"))
	assert.Contains(t, sms.sent[0], "ORD-0001-20250307")

	require.Len(t, mail.sent, 1)
	e := mail.sent[0]
	assert.Equal(t, "rahim@example.com", e.To)
	assert.Equal(t, "Your Invoice for Order ORD-0001-20250307", e.Subject)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "invoice-ORD-0001-20250307.pdf", e.Attachments[0].Name)
	assert.Equal(t, "application/pdf", e.Attachments[0].ContentType)

	require.Len(t, events.orders, 1)
	assert.Equal(t, "o-1", events.orders[0].ID)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sms := &fakeSMS{fails: 2}

	runDispatcher(t, testConfig(), Deps{SMS: sms}, func(d *Dispatcher) {
		d.OrderChanged(context.Background(), testOrder())
	})

	assert.Equal(t, 3, sms.calls)
	assert.Len(t, sms.sent, 1)
}

func TestDispatcher_SMSFailureDoesNotBlockEmail(t *testing.T) {
	sms := &fakeSMS{fails: 100}
	mail := &fakeEmail{}

	runDispatcher(t, testConfig(), Deps{SMS: sms, Email: mail}, func(d *Dispatcher) {
		d.OrderChanged(context.Background(), testOrder())
	})

	assert.Equal(t, 3, sms.calls)
	assert.Empty(t, sms.sent)
	require.Len(t, mail.sent, 1)
	assert.Empty(t, mail.sent[0].Attachments)
}

func TestDispatcher_SkipsMissingContact(t *testing.T) {
	sms := &fakeSMS{}
	mail := &fakeEmail{}

	o := testOrder()
	o.Email = ""
	o.Phone = ""

	runDispatcher(t, testConfig(), Deps{SMS: sms, Email: mail}, func(d *Dispatcher) {
		d.OrderChanged(context.Background(), o)
	})

	assert.Zero(t, sms.calls)
	assert.Empty(t, mail.sent)
}

func TestDispatcher_RenderFailureIsNotRetried(t *testing.T) {
	mail := &fakeEmail{}
	deps := Deps{Email: mail, Invoices: fakeRenderer{err: errors.New("font missing")}}

	runDispatcher(t, testConfig(), deps, func(d *Dispatcher) {
		d.OrderChanged(context.Background(), testOrder())
	})

	assert.Empty(t, mail.sent)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	sms := &fakeSMS{}

	d, err := NewDispatcher(zap.NewNop(), testConfig(), Deps{SMS: sms}, nil)
	require.NoError(t, err)
	d.Close()
	d.Close()

	d.OrderChanged(context.Background(), testOrder())
	require.NoError(t, d.Run(context.Background()))
	assert.Zero(t, sms.calls)
}

func TestDispatcher_FullQueueDoesNotBlock(t *testing.T) {
	sms := &fakeSMS{}
	cfg := testConfig()
	cfg.QueueSize = 1

	d, err := NewDispatcher(zap.NewNop(), cfg, Deps{SMS: sms}, nil)
	require.NoError(t, err)

	// No workers are running, so only the first notification fits.
	for range 5 {
		d.OrderChanged(context.Background(), testOrder())
	}
	assert.Equal(t, 1, d.Pending())
	d.Close()
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 1, sms.calls)
}

func TestSMSText(t *testing.T) {
	text := SMSText(testOrder())
	assert.Contains(t, text, "সম্মানিত Rahim Uddin")
	assert.Contains(t, text, "Tea (2 x 90)")
	assert.Contains(t, text, "মোট মূল্য: 230, অফার মূল্য: 20")
	assert.Contains(t, text, "গ্রহণ করা হয়েছে")

	o := testOrder()
	o.Lines = nil
	o.Status = "Unknown"
	text = SMSText(o)
	assert.Contains(t, text, "No products available")
	assert.Contains(t, text, "অর্ডার অবস্থা: Unknown")
}

func TestInvoiceBodyEscapesNumber(t *testing.T) {
	o := testOrder()
	o.Number = "<b>"
	assert.Contains(t, InvoiceBody(o), "&lt;b&gt;")
}
