package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
)

// Type is how the order reaches the customer.
type Type string

const (
	TypeDelivery Type = "Delivery"
	TypePickup   Type = "Pickup"
	TypeOnline   Type = "Online"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeDelivery || t == TypePickup || t == TypeOnline
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "Cash On Delivery"
	PaymentOnline         PaymentMethod = "Online Payment"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentOnline
}

// Channel is the storefront the order was placed from.
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelWeb || c == ChannelMobile
}

// DefaultNote is stored when an order is created without a note.
const DefaultNote = "Order Note"

// MaxNoteLength bounds the order note in characters.
const MaxNoteLength = 3000

// Order is a committed checkout. Only Status, Note and OutletID change after
// creation.
type Order struct {
	ID     string
	Number string

	CustomerID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string

	Lines []Line

	CouponID   string
	CouponCode string

	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	VATRate        decimal.Decimal
	VAT            decimal.Decimal
	Total          decimal.Decimal

	Status        Status
	Note          string
	OutletID      string
	Type          Type
	PaymentMethod PaymentMethod
	TransactionID string
	Channel       Channel
	CustomerIP    string

	DeliveryAddress string
	City            string
	Area            string
	District        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomerName joins the order's first and last name.
func (o *Order) CustomerName() string {
	switch {
	case o.FirstName == "":
		return o.LastName
	case o.LastName == "":
		return o.FirstName
	default:
		return o.FirstName + " " + o.LastName
	}
}

// Line is a purchased product denormalized at order time.
type Line struct {
	ProductID    string
	Name         string
	SKU          string
	Image        string
	RegularPrice decimal.Decimal
	SalePrice    decimal.NullDecimal
	// UnitPrice is the price the line was charged at.
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Summary aggregates a customer's order history.
type Summary struct {
	CustomerID        string
	TotalOrders       int
	AverageOrderValue decimal.Decimal
}

// Page limits for order listings.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// ListFilter selects orders for a listing, newest first. An empty
// CustomerID lists every order.
type ListFilter struct {
	CustomerID string
	Limit      int
	Offset     int
}

// Normalize clamps the page to the allowed range.
func (f ListFilter) Normalize() ListFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// Repository defines persistence operations for orders.
type Repository interface {
	// NextSequence returns the next value of the order number sequence.
	NextSequence(ctx context.Context) (int64, error)
	// Create inserts the order. When r is non-nil the coupon's total counter
	// and the customer's usage are consumed in the same transaction; if
	// either is already exhausted nothing is written and an error wrapping
	// coupon.ErrCouponExhausted is returned.
	Create(ctx context.Context, o *Order, r *coupon.Redemption) error
	// GetByID accepts either the order id or its human-readable number.
	GetByID(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	UpdateNote(ctx context.Context, id, note string) (*Order, error)
	UpdateOutlet(ctx context.Context, id, outletID string) (*Order, error)
	CustomerSummary(ctx context.Context, customerID string) (*Summary, error)
	// List returns orders with their lines, newest first.
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

// Notifier is told about committed order changes. Implementations must not
// block the caller.
type Notifier interface {
	OrderChanged(ctx context.Context, o Order)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// OrderChanged implements Notifier.
func (NopNotifier) OrderChanged(context.Context, Order) {}
