package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
	"github.com/xenking/outlet-commerce/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCouponRepo struct {
	byCode map[string]coupon.Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &c, nil
}

func (m *mockCouponRepo) CustomerUsage(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

type mockCustomerRepo struct {
	customers []customer.Customer
}

func (m *mockCustomerRepo) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

func (m *mockCustomerRepo) FindByEmailOrPhone(_ context.Context, email, phone string) (*customer.Customer, error) {
	for _, c := range m.customers {
		if (email != "" && c.Email == email) || (phone != "" && c.Phone == phone) {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

type mockOutletRepo struct {
	ids map[string]bool
}

func (m *mockOutletRepo) FindByID(_ context.Context, id string) (*outlet.Outlet, error) {
	if !m.ids[id] {
		return nil, outlet.ErrNotFound
	}
	return &outlet.Outlet{ID: id}, nil
}

type mockOrderRepo struct {
	seq        int64
	created    []*Order
	redemption *coupon.Redemption
	createErr  error
	byID       map[string]*Order
	updateErr  error
	summary    *Summary
	listed     []ListFilter
	listErr    error
}

func (m *mockOrderRepo) NextSequence(context.Context) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order, r *coupon.Redemption) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, o)
	m.redemption = r
	if m.byID == nil {
		m.byID = make(map[string]*Order)
	}
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (m *mockOrderRepo) update(id string, fn func(o *Order)) (*Order, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(o)
	c := *o
	return &c, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status) (*Order, error) {
	return m.update(id, func(o *Order) { o.Status = status })
}

func (m *mockOrderRepo) UpdateNote(_ context.Context, id, note string) (*Order, error) {
	return m.update(id, func(o *Order) { o.Note = note })
}

func (m *mockOrderRepo) UpdateOutlet(_ context.Context, id, outletID string) (*Order, error) {
	return m.update(id, func(o *Order) { o.OutletID = outletID })
}

func (m *mockOrderRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	m.listed = append(m.listed, f)
	var out []Order
	for _, o := range m.created {
		if f.CustomerID == "" || o.CustomerID == f.CustomerID {
			out = append(out, *o)
		}
	}
	return out, m.listErr
}

func (m *mockOrderRepo) CustomerSummary(_ context.Context, customerID string) (*Summary, error) {
	if m.summary == nil {
		return &Summary{CustomerID: customerID}, nil
	}
	return m.summary, nil
}

type recordingNotifier struct {
	orders []Order
}

func (n *recordingNotifier) OrderChanged(_ context.Context, o Order) {
	n.orders = append(n.orders, o)
}

// --- Helpers ---

var fixedNow = time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	orders   *mockOrderRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T, coupons []coupon.Coupon, opts ...Option) *fixture {
	t.Helper()

	products := &mockProductRepo{byID: map[string]product.Product{
		"p1": {
			ID:           "p1",
			Name:         "Headphones",
			SKU:          "HP-1",
			RegularPrice: decimal.NewFromInt(100),
			SalePrice:    decimal.NewNullDecimal(decimal.NewFromInt(80)),
			CategoryIDs:  []string{"audio"},
		},
		"p2": {
			ID:           "p2",
			Name:         "Cable",
			SKU:          "CB-2",
			RegularPrice: decimal.NewFromInt(50),
			CategoryIDs:  []string{"accessories"},
		},
	}}
	couponRepo := &mockCouponRepo{byCode: make(map[string]coupon.Coupon)}
	for _, c := range coupons {
		couponRepo.byCode[c.Code] = c
	}
	customers := &mockCustomerRepo{customers: []customer.Customer{
		{ID: "c1", FirstName: "Rahim", LastName: "Uddin", Email: "rahim@example.com", Phone: "01700000001"},
		{ID: "c2", FirstName: "Karim", Phone: "01700000002"},
	}}

	evaluator := coupon.NewEvaluator(couponRepo)
	orders := &mockOrderRepo{}
	notifier := &recordingNotifier{}

	svc, err := NewService(Deps{
		Customers: customers,
		Catalog:   catalog.NewResolver(products),
		Coupons:   evaluator,
		Orders:    orders,
		Outlets:   &mockOutletRepo{ids: map[string]bool{"o1": true, "o2": true}},
		Notifier:  notifier,
	}, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
	require.NoError(t, err)

	return &fixture{svc: svc, orders: orders, notifier: notifier}
}

func baseRequest() CreateRequest {
	return CreateRequest{
		Customer: customer.Lookup{Email: "rahim@example.com"},
		Items: []catalog.LineItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
		DeliveryCharge: decimal.NewFromInt(10),
		Type:           TypeDelivery,
		PaymentMethod:  PaymentCashOnDelivery,
		Channel:        ChannelWeb,
	}
}

func save10() coupon.Coupon {
	return coupon.Coupon{
		ID:                    "cp-save10",
		Code:                  "SAVE10",
		DiscountType:          coupon.DiscountPercentage,
		Amount:                decimal.NewFromInt(10),
		Expiry:                fixedNow.Add(30 * 24 * time.Hour),
		UsageLimitTotal:       5,
		UsageLimitPerCustomer: 1,
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

// --- Tests ---

func TestCreateOrder_NoCoupon(t *testing.T) {
	f := newFixture(t, nil)

	o, err := f.svc.CreateOrder(context.Background(), baseRequest())

	require.NoError(t, err)
	assertDecimal(t, "180", o.Subtotal)
	assertDecimal(t, "20", o.Discount)
	assertDecimal(t, "10", o.DeliveryCharge)
	assertDecimal(t, "9", o.VAT)
	assertDecimal(t, "170", o.Total)
	assert.Equal(t, StatusReceived, o.Status)
	assert.Equal(t, "ORD-0001-20250307", o.Number)
	assert.Equal(t, "c1", o.CustomerID)
	assert.Empty(t, o.CouponID)
	assert.Nil(t, f.orders.redemption)
	assert.Equal(t, DefaultNote, o.Note)

	require.Len(t, o.Lines, 2)
	assert.Equal(t, "Headphones", o.Lines[0].Name)
	assertDecimal(t, "80", o.Lines[0].UnitPrice)
	assertDecimal(t, "100", o.Lines[1].LineTotal)
}

func TestCreateOrder_WithCoupon(t *testing.T) {
	f := newFixture(t, []coupon.Coupon{save10()})
	req := baseRequest()
	req.CouponCode = "SAVE10"

	o, err := f.svc.CreateOrder(context.Background(), req)

	require.NoError(t, err)
	assertDecimal(t, "200", o.Subtotal)
	assertDecimal(t, "20", o.Discount)
	assertDecimal(t, "10", o.VAT)
	assertDecimal(t, "190", o.Total)
	assert.Equal(t, "cp-save10", o.CouponID)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assertDecimal(t, "100", o.Lines[0].UnitPrice)

	require.NotNil(t, f.orders.redemption)
	assert.Equal(t, coupon.Redemption{CouponID: "cp-save10", CustomerID: "c1"}, *f.orders.redemption)
}

func TestCreateOrder_CouponFailuresPersistNothing(t *testing.T) {
	expired := save10()
	expired.Code = "EXPIRED"
	expired.Expiry = fixedNow.Add(-24 * time.Hour)

	minSpend := save10()
	minSpend.Code = "BIG"
	minSpend.MinSpend = decimal.NewFromInt(500)

	tests := []struct {
		code    string
		wantErr error
	}{
		{code: "EXPIRED", wantErr: coupon.ErrCouponExpired},
		{code: "BIG", wantErr: coupon.ErrBelowMinimumSpend},
		{code: "NOPE", wantErr: coupon.ErrInvalidCoupon},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture(t, []coupon.Coupon{expired, minSpend})
			req := baseRequest()
			req.CouponCode = tt.code

			_, err := f.svc.CreateOrder(context.Background(), req)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.orders.created)
			assert.Empty(t, f.notifier.orders)
			assert.Zero(t, f.orders.seq)
		})
	}
}

func TestCreateOrder_ClockDrivesExpiry(t *testing.T) {
	c := save10()
	c.Expiry = fixedNow.Add(time.Hour)

	tests := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{name: "before expiry", now: fixedNow},
		{name: "after expiry", now: fixedNow.Add(2 * time.Hour), wantErr: coupon.ErrCouponExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []coupon.Coupon{c}, WithClock(func() time.Time { return tt.now }))
			req := baseRequest()
			req.CouponCode = "SAVE10"

			o, err := f.svc.CreateOrder(context.Background(), req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.orders.created)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.now, o.CreatedAt)
		})
	}
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	f := newFixture(t, nil)
	req := baseRequest()
	req.Customer = customer.Lookup{Email: "ghost@example.com", Phone: "000"}

	_, err := f.svc.CreateOrder(context.Background(), req)

	require.ErrorIs(t, err, customer.ErrNotFound)
	assert.Empty(t, f.orders.created)
}

func TestCreateOrder_CustomerFallbacks(t *testing.T) {
	f := newFixture(t, nil)
	req := baseRequest()
	req.Customer = customer.Lookup{Phone: "01700000002"}
	req.LastName = "Ahmed"

	o, err := f.svc.CreateOrder(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "c2", o.CustomerID)
	assert.Equal(t, "Karim", o.FirstName)
	assert.Equal(t, "Ahmed", o.LastName)
	assert.Equal(t, "01700000002", o.Phone)
	assert.Empty(t, o.Email)
}

func TestCreateOrder_InvalidProduct(t *testing.T) {
	f := newFixture(t, nil)
	req := baseRequest()
	req.Items = append(req.Items, catalog.LineItem{ProductID: "missing", Quantity: 1})

	_, err := f.svc.CreateOrder(context.Background(), req)

	var ipErr *catalog.InvalidProductError
	require.ErrorAs(t, err, &ipErr)
	assert.Equal(t, []string{"missing"}, ipErr.ProductIDs)
	assert.Empty(t, f.orders.created)
}

func TestCreateOrder_NegativeDeliveryCharge(t *testing.T) {
	f := newFixture(t, nil)
	req := baseRequest()
	req.DeliveryCharge = decimal.NewFromInt(-1)

	_, err := f.svc.CreateOrder(context.Background(), req)

	require.ErrorIs(t, err, ErrInvalidDeliveryCharge)
}

func TestCreateOrder_UnknownOutletIsDropped(t *testing.T) {
	f := newFixture(t, nil)

	req := baseRequest()
	req.OutletID = "o-unknown"
	o, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, o.OutletID)

	req.OutletID = "o1"
	o, err = f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "o1", o.OutletID)
	assert.Equal(t, "ORD-0002-20250307", o.Number)
}

func TestCreateOrder_LateExhaustion(t *testing.T) {
	f := newFixture(t, []coupon.Coupon{save10()})
	f.orders.createErr = errors.Wrap(coupon.ErrCouponExhausted, "conditional decrement")
	req := baseRequest()
	req.CouponCode = "SAVE10"

	_, err := f.svc.CreateOrder(context.Background(), req)

	require.ErrorIs(t, err, coupon.ErrCouponExhausted)
	var rej *coupon.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "SAVE10", rej.Code)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Empty(t, f.notifier.orders)
}

func TestCreateOrder_PersistenceFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.createErr = errors.New("duplicate key value violates unique constraint")

	_, err := f.svc.CreateOrder(context.Background(), baseRequest())

	require.ErrorIs(t, err, ErrPersistence)
	assert.NotContains(t, err.Error(), "duplicate key")
	assert.Empty(t, f.notifier.orders)
}

func TestCreateOrder_NotifiesAfterCommit(t *testing.T) {
	f := newFixture(t, nil)

	o, err := f.svc.CreateOrder(context.Background(), baseRequest())

	require.NoError(t, err)
	require.Len(t, f.notifier.orders, 1)
	assert.Equal(t, o.ID, f.notifier.orders[0].ID)
	assert.Equal(t, StatusReceived, f.notifier.orders[0].Status)
}

func TestCreateOrder_CustomPrefixAndVAT(t *testing.T) {
	f := newFixture(t, nil, WithNumberPrefix("BE"), WithVATRate(decimal.NewFromInt(15)))

	o, err := f.svc.CreateOrder(context.Background(), baseRequest())

	require.NoError(t, err)
	assert.Equal(t, "BE-0001-20250307", o.Number)
	assertDecimal(t, "27", o.VAT)
	assertDecimal(t, "170", o.Total)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, []coupon.Coupon{save10()})

	q, err := f.svc.Quote(context.Background(), QuoteRequest{
		Items:      baseRequest().Items,
		CouponCode: "SAVE10",
	})

	require.NoError(t, err)
	assert.Equal(t, "SAVE10", q.CouponCode)
	assertDecimal(t, "200", q.Subtotal)
	assertDecimal(t, "20", q.Discount)
	assertDecimal(t, "180", q.DiscountedPrice())
	assertDecimal(t, "180", q.Total)
	assert.Empty(t, f.orders.created)
	assert.Nil(t, f.orders.redemption)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, nil)
	o, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusDelivered)

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)
	require.Len(t, f.notifier.orders, 2)
	assert.Equal(t, StatusDelivered, f.notifier.orders[1].Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t, nil)
	o, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, Status("Lost"))
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(context.Background(), "missing", StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)

	f.orders.updateErr = errors.New("connection reset")
	_, err = f.svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed)
	require.ErrorIs(t, err, ErrPersistence)

	assert.Len(t, f.notifier.orders, 1)
}

func TestUpdateStatus_EnforcedTransitions(t *testing.T) {
	f := newFixture(t, nil, WithTransitions(true))
	o, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, StatusDelivered)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusReceived, trErr.From)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed)
	require.NoError(t, err)
}

func TestUpdateNote(t *testing.T) {
	f := newFixture(t, nil)
	o, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateNote(context.Background(), o.ID, "Leave at the gate")
	require.NoError(t, err)
	assert.Equal(t, "Leave at the gate", updated.Note)

	long := make([]rune, MaxNoteLength+1)
	for i := range long {
		long[i] = 'ন'
	}
	_, err = f.svc.UpdateNote(context.Background(), o.ID, string(long))
	require.ErrorIs(t, err, ErrNoteTooLong)
}

func TestUpdateOutlet(t *testing.T) {
	f := newFixture(t, nil)
	o, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateOutlet(context.Background(), o.ID, "o2")
	require.NoError(t, err)
	assert.Equal(t, "o2", updated.OutletID)

	_, err = f.svc.UpdateOutlet(context.Background(), o.ID, "nowhere")
	require.ErrorIs(t, err, outlet.ErrNotFound)
}

func TestCustomerHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.summary = &Summary{CustomerID: "c1", TotalOrders: 3, AverageOrderValue: decimal.RequireFromString("123.456")}

	sum, err := f.svc.CustomerHistory(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalOrders)
	assertDecimal(t, "123.46", sum.AverageOrderValue)

	_, err = f.svc.CustomerHistory(context.Background(), "ghost")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)
	other := baseRequest()
	other.Customer = customer.Lookup{Phone: "01700000002"}
	_, err = f.svc.CreateOrder(context.Background(), other)
	require.NoError(t, err)

	orders, err := f.svc.List(context.Background(), ListFilter{CustomerID: "c1", Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, orders, 2, "customer filter is ignored")
	assert.Equal(t, ListFilter{Limit: MaxPageLimit}, f.orders.listed[0])

	f.orders.listErr = errors.New("connection reset")
	_, err = f.svc.List(context.Background(), ListFilter{})
	require.ErrorContains(t, err, "list orders")
}

func TestCustomerOrders(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	orders, err := f.svc.CustomerOrders(context.Background(), "c1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "c1", orders[0].CustomerID)
	assert.Len(t, orders[0].Lines, 2)
	assert.Equal(t, ListFilter{CustomerID: "c1", Limit: DefaultPageLimit}, f.orders.listed[0])

	orders, err = f.svc.CustomerOrders(context.Background(), "c2", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = f.svc.CustomerOrders(context.Background(), "ghost", ListFilter{})
	require.ErrorIs(t, err, customer.ErrNotFound)
	assert.Len(t, f.orders.listed, 2, "unknown customer is not listed")
}

func TestListFilter_Normalize(t *testing.T) {
	tests := []struct {
		in, want ListFilter
	}{
		{in: ListFilter{}, want: ListFilter{Limit: DefaultPageLimit}},
		{in: ListFilter{Limit: 10, Offset: 20}, want: ListFilter{Limit: 10, Offset: 20}},
		{in: ListFilter{Limit: MaxPageLimit + 1, Offset: -1}, want: ListFilter{Limit: MaxPageLimit}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize())
	}
}

func TestFormatNumber(t *testing.T) {
	at := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "ORD-0007-20241201", FormatNumber("ORD", 7, at))
	assert.Equal(t, "ORD-12345-20241201", FormatNumber("ORD", 12345, at))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusReceived, StatusConfirmed))
	assert.True(t, CanTransition(StatusDelivered, StatusDelivered))
	assert.False(t, CanTransition(StatusDelivered, StatusReceived))
	assert.False(t, CanTransition(StatusCancelled, StatusConfirmed))
	assert.False(t, Status("Lost").Valid())
	assert.True(t, StatusOnHold.Valid())
}
