package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rejection kinds. Every evaluation failure unwraps to exactly one of these.
var (
	ErrInvalidCoupon       = errors.New("invalid coupon code")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponBlocked       = errors.New("coupon blocked for customer")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
	ErrBelowMinimumSpend   = errors.New("order total below coupon minimum spend")
	ErrAboveMaximumSpend   = errors.New("order total above coupon maximum spend")
	ErrProductNotEligible  = errors.New("product not eligible for coupon")
	ErrCategoryNotEligible = errors.New("category not eligible for coupon")
)

// RejectionError carries the context needed to explain why a coupon was
// refused: the code, the offending product or category, and the bound that
// was violated.
type RejectionError struct {
	Kind error
	Code string
	// Subject is the offending product id, category id, or customer id.
	Subject string
	// Bound and Spent are set for spend violations.
	Bound decimal.Decimal
	Spent decimal.Decimal
}

func (e *RejectionError) Error() string {
	switch e.Kind {
	case ErrBelowMinimumSpend, ErrAboveMaximumSpend:
		return fmt.Sprintf("coupon %q: %s (spent %s, limit %s)",
			e.Code, e.Kind, e.Spent.StringFixed(2), e.Bound.StringFixed(2))
	case ErrProductNotEligible:
		return fmt.Sprintf("coupon %q: product %s is not eligible", e.Code, e.Subject)
	case ErrCategoryNotEligible:
		return fmt.Sprintf("coupon %q: category %s is not eligible", e.Code, e.Subject)
	default:
		return fmt.Sprintf("coupon %q: %s", e.Code, e.Kind)
	}
}

func (e *RejectionError) Unwrap() error { return e.Kind }

// Reason returns a short machine-readable name of the rejection kind.
func (e *RejectionError) Reason() string {
	return Reason(e.Kind)
}

// Reason maps a rejection sentinel to its kind name.
func Reason(kind error) string {
	switch kind {
	case ErrInvalidCoupon:
		return "InvalidCoupon"
	case ErrCouponExpired:
		return "CouponExpired"
	case ErrCouponBlocked:
		return "CouponBlocked"
	case ErrCouponExhausted:
		return "CouponExhausted"
	case ErrBelowMinimumSpend:
		return "BelowMinimumSpend"
	case ErrAboveMaximumSpend:
		return "AboveMaximumSpend"
	case ErrProductNotEligible:
		return "ProductNotEligible"
	case ErrCategoryNotEligible:
		return "CategoryNotEligible"
	default:
		return "CouponRejected"
	}
}

func reject(kind error, code string) *RejectionError {
	return &RejectionError{Kind: kind, Code: code}
}
