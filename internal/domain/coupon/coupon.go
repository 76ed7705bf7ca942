package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes Amount percent off the regular-price total.
	DiscountPercentage DiscountType = "Percentage"
	// DiscountFixed takes a flat Amount off, never more than the total.
	DiscountFixed DiscountType = "Fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is a named discount rule with eligibility constraints and
// consumable usage counters.
type Coupon struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Amount       decimal.Decimal
	// Expiry is the last valid instant. Zero means the coupon never expires.
	Expiry   time.Time
	MinSpend decimal.Decimal
	// MaxSpend is unbounded when not valid.
	MaxSpend decimal.NullDecimal

	// UsageLimitTotal is the number of redemptions left across all customers.
	UsageLimitTotal int
	// UsageLimitPerCustomer is how many times a single customer may redeem.
	UsageLimitPerCustomer int

	IncludedProducts   []string
	ExcludedProducts   []string
	IncludedCategories []string
	ExcludedCategories []string
	BlockedCustomers   []string
}

// Redemption identifies a coupon consumption to be committed with an order.
type Redemption struct {
	CouponID   string
	CustomerID string
}

// Repository provides coupon lookups. Counter mutation happens in the order
// store so it can share the order's transaction.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CustomerUsage returns how many times customerID has redeemed couponID.
	CustomerUsage(ctx context.Context, couponID, customerID string) (int, error)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
