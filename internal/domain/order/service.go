package order

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
)

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Customer customer.Lookup

	// Optional overrides; customer record values are used when empty.
	FirstName string
	LastName  string

	Items          []catalog.LineItem
	CouponCode     string
	DeliveryCharge decimal.Decimal

	DeliveryAddress string
	City            string
	Area            string
	District        string
	Type            Type
	PaymentMethod   PaymentMethod
	TransactionID   string
	Channel         Channel
	CustomerIP      string
	OutletID        string
	Note            string
}

// QuoteRequest holds the input for pricing an order without committing it.
type QuoteRequest struct {
	// Customer is optional. Per-customer coupon rules apply only when set.
	Customer       customer.Lookup
	Items          []catalog.LineItem
	CouponCode     string
	DeliveryCharge decimal.Decimal
}

// Quote is a priced, uncommitted order.
type Quote struct {
	Pricing
	CouponCode string
	Lines      []Line
}

// Deps are the collaborators of Service.
type Deps struct {
	Customers customer.Repository
	Catalog   *catalog.Resolver
	Coupons   *coupon.Evaluator
	Orders    Repository
	Outlets   outlet.Repository
	Notifier  Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithNumberPrefix sets the order number prefix.
func WithNumberPrefix(prefix string) Option {
	return func(s *Service) { s.prefix = prefix }
}

// WithVATRate sets the reported VAT percentage.
func WithVATRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.vatRate = rate }
}

// WithTransitions enables status transition enforcement.
func WithTransitions(enforce bool) Option {
	return func(s *Service) { s.enforceTransitions = enforce }
}

// WithClock sets the clock used for order timestamps and coupon expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("github.com/xenking/outlet-commerce/internal/domain/order")
		s.meter = mp.Meter("github.com/xenking/outlet-commerce/internal/domain/order")
	}
}

// Service encapsulates order pricing, commit and lifecycle updates.
type Service struct {
	customers customer.Repository
	catalog   *catalog.Resolver
	coupons   *coupon.Evaluator
	orders    Repository
	outlets   outlet.Repository
	notifier  Notifier

	prefix             string
	vatRate            decimal.Decimal
	enforceTransitions bool
	now                func() time.Time

	tracer trace.Tracer
	meter  metric.Meter

	created  metric.Int64Counter
	redeemed metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	s := &Service{
		customers: deps.Customers,
		catalog:   deps.Catalog,
		coupons:   deps.Coupons,
		orders:    deps.Orders,
		outlets:   deps.Outlets,
		notifier:  deps.Notifier,
		prefix:    "ORD",
		vatRate:   DefaultVATRate,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		meter:     metricnoop.NewMeterProvider().Meter(""),
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.coupons != nil {
		s.coupons = s.coupons.WithClock(s.now)
	}

	var err error
	if s.created, err = s.meter.Int64Counter("shop.orders.created",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.redeemed, err = s.meter.Int64Counter("shop.coupons.redeemed",
		metric.WithDescription("Coupon redemptions committed with an order"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.redeemed counter")
	}
	if s.rejected, err = s.meter.Int64Counter("shop.coupons.rejected",
		metric.WithDescription("Coupon evaluations that failed"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.rejected counter")
	}
	return s, nil
}

// CreateOrder resolves the customer and catalog, evaluates the coupon,
// prices the order, and commits it together with the coupon redemption.
// Notifications are handed off after commit and never affect the result.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if req.DeliveryCharge.IsNegative() {
		return nil, ErrInvalidDeliveryCharge
	}

	cust, err := customer.Resolve(ctx, s.customers, req.Customer)
	if err != nil {
		return nil, err
	}

	items, err := s.catalog.Resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.CouponCode)
	eval, err := s.coupons.Evaluate(ctx, code, items, cust.ID)
	if err != nil {
		s.countRejection(ctx, err)
		return nil, err
	}

	withCoupon := eval.Coupon != nil
	pricing := Price(items, withCoupon, eval.Discount, req.DeliveryCharge, s.vatRate)

	outletID, err := s.resolveOutlet(ctx, req.OutletID)
	if err != nil {
		return nil, err
	}

	seq, err := s.orders.NextSequence(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "allocate order number", Err: err}
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		Number:          FormatNumber(s.prefix, seq, now),
		CustomerID:      cust.ID,
		FirstName:       firstNonEmpty(req.FirstName, cust.FirstName),
		LastName:        firstNonEmpty(req.LastName, cust.LastName),
		Email:           firstNonEmpty(req.Customer.Email, cust.Email),
		Phone:           firstNonEmpty(req.Customer.Phone, cust.Phone),
		Lines:           Lines(items, withCoupon),
		Subtotal:        pricing.Subtotal,
		Discount:        pricing.Discount,
		DeliveryCharge:  pricing.DeliveryCharge,
		VATRate:         pricing.VATRate,
		VAT:             pricing.VAT,
		Total:           pricing.Total,
		Status:          StatusReceived,
		Note:            firstNonEmpty(req.Note, DefaultNote),
		OutletID:        outletID,
		Type:            req.Type,
		PaymentMethod:   req.PaymentMethod,
		TransactionID:   req.TransactionID,
		Channel:         req.Channel,
		CustomerIP:      req.CustomerIP,
		DeliveryAddress: req.DeliveryAddress,
		City:            req.City,
		Area:            req.Area,
		District:        req.District,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var redemption *coupon.Redemption
	if withCoupon {
		o.CouponID = eval.Coupon.ID
		o.CouponCode = eval.Coupon.Code
		redemption = &coupon.Redemption{CouponID: eval.Coupon.ID, CustomerID: cust.ID}
	}

	if err := s.orders.Create(ctx, o, redemption); err != nil {
		if errors.Is(err, coupon.ErrCouponExhausted) {
			// Lost the race for the last redemption after evaluation passed.
			rej := &coupon.RejectionError{Kind: coupon.ErrCouponExhausted, Code: o.CouponCode, Subject: cust.ID}
			s.countRejection(ctx, rej)
			return nil, rej
		}
		return nil, &PersistenceError{Op: "create order", Err: err}
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", withCoupon)))
	if withCoupon {
		s.redeemed.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.Number),
	)

	s.notifier.OrderChanged(ctx, *o)

	return o, nil
}

// Quote prices an order the way CreateOrder would, without persisting
// anything or consuming the coupon.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.DeliveryCharge.IsNegative() {
		return nil, ErrInvalidDeliveryCharge
	}

	var customerID string
	if req.Customer != (customer.Lookup{}) {
		cust, err := customer.Resolve(ctx, s.customers, req.Customer)
		if err != nil {
			return nil, err
		}
		customerID = cust.ID
	}

	items, err := s.catalog.Resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	eval, err := s.coupons.Evaluate(ctx, req.CouponCode, items, customerID)
	if err != nil {
		return nil, err
	}

	withCoupon := eval.Coupon != nil
	q := &Quote{
		Pricing: Price(items, withCoupon, eval.Discount, req.DeliveryCharge, s.vatRate),
		Lines:   Lines(items, withCoupon),
	}
	if withCoupon {
		q.CouponCode = eval.Coupon.Code
	}
	return q, nil
}

// UpdateStatus sets the order status and re-sends notifications. Any
// enumerated status is accepted unless transition enforcement is enabled.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "status %q", status)
	}

	if s.enforceTransitions {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(current.Status, status) {
			return nil, &TransitionError{From: current.Status, To: status}
		}
	}

	o, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, s.writeError("update order status", err)
	}

	s.notifier.OrderChanged(ctx, *o)
	return o, nil
}

// GetByID returns the order by id or number.
func (s *Service) GetByID(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// UpdateNote replaces the order note.
func (s *Service) UpdateNote(ctx context.Context, id, note string) (*Order, error) {
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	o, err := s.orders.UpdateNote(ctx, id, note)
	if err != nil {
		return nil, s.writeError("update order note", err)
	}
	return o, nil
}

// UpdateOutlet transfers the order to another outlet.
func (s *Service) UpdateOutlet(ctx context.Context, id, outletID string) (*Order, error) {
	if _, err := s.outlets.FindByID(ctx, outletID); err != nil {
		if errors.Is(err, outlet.ErrNotFound) {
			return nil, outlet.ErrNotFound
		}
		return nil, errors.Wrap(err, "find outlet")
	}
	o, err := s.orders.UpdateOutlet(ctx, id, outletID)
	if err != nil {
		return nil, s.writeError("update order outlet", err)
	}
	return o, nil
}

// CustomerHistory returns the number of orders and average order value for
// a customer.
func (s *Service) CustomerHistory(ctx context.Context, customerID string) (*Summary, error) {
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrap(err, "find customer")
	}
	sum, err := s.orders.CustomerSummary(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "customer summary")
	}
	sum.AverageOrderValue = sum.AverageOrderValue.Round(2)
	return sum, nil
}

// List returns a page of all orders, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	f = f.Normalize()
	f.CustomerID = ""
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// CustomerOrders returns a page of the customer's orders, newest first. A
// known customer without orders gets an empty list.
func (s *Service) CustomerOrders(ctx context.Context, customerID string, f ListFilter) ([]Order, error) {
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrap(err, "find customer")
	}
	f = f.Normalize()
	f.CustomerID = customerID
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list customer orders")
	}
	return orders, nil
}

// resolveOutlet drops unknown outlet ids; the order is still accepted.
func (s *Service) resolveOutlet(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if _, err := s.outlets.FindByID(ctx, id); err != nil {
		if errors.Is(err, outlet.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "find outlet")
	}
	return id, nil
}

func (s *Service) writeError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return &PersistenceError{Op: op, Err: err}
}

func (s *Service) countRejection(ctx context.Context, err error) {
	var rej *coupon.RejectionError
	if !errors.As(err, &rej) {
		return
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rej.Reason())))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
