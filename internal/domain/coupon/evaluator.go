package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the outcome of a successful coupon check.
type Evaluation struct {
	// Coupon is nil when no code was supplied.
	Coupon *Coupon
	// Discount is the coupon discount, or the aggregate line markdown when
	// no code was supplied.
	Discount decimal.Decimal
	// Basis is the regular-price total a coupon was evaluated against.
	Basis decimal.Decimal
}

// Evaluator checks coupon applicability and computes discounts. It never
// mutates coupon counters.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository, opts ...Option) *Evaluator {
	e := &Evaluator{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithClock returns a copy of e that checks expiry against now.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	c := *e
	c.now = now
	return &c
}

// Evaluate runs the coupon checks in a fixed order and returns on the first
// failure: lookup, expiry, blocklist, total limit, per-customer limit, spend
// bounds, product eligibility, category eligibility.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	code string,
	items []catalog.ResolvedProduct,
	customerID string,
) (*Evaluation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return &Evaluation{Discount: catalog.Markdown(items)}, nil
	}

	c, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, reject(ErrInvalidCoupon, code)
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Expiry.IsZero() && e.now().After(c.Expiry) {
		return nil, reject(ErrCouponExpired, code)
	}

	if contains(c.BlockedCustomers, customerID) {
		return nil, &RejectionError{Kind: ErrCouponBlocked, Code: code, Subject: customerID}
	}

	if c.UsageLimitTotal <= 0 {
		return nil, reject(ErrCouponExhausted, code)
	}

	used, err := e.repo.CustomerUsage(ctx, c.ID, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon usage")
	}
	if c.UsageLimitPerCustomer-used <= 0 {
		return nil, &RejectionError{Kind: ErrCouponExhausted, Code: code, Subject: customerID}
	}

	basis := catalog.RegularTotal(items)
	if basis.LessThan(c.MinSpend) {
		return nil, &RejectionError{Kind: ErrBelowMinimumSpend, Code: code, Bound: c.MinSpend, Spent: basis}
	}
	if c.MaxSpend.Valid && basis.GreaterThan(c.MaxSpend.Decimal) {
		return nil, &RejectionError{Kind: ErrAboveMaximumSpend, Code: code, Bound: c.MaxSpend.Decimal, Spent: basis}
	}

	if err := checkEligibility(c, items); err != nil {
		return nil, err
	}

	return &Evaluation{
		Coupon:   c,
		Discount: Discount(c, basis),
		Basis:    basis,
	}, nil
}

// checkEligibility verifies every product, then each product's categories,
// against the coupon's include and exclude lists. An empty include list
// admits all.
func checkEligibility(c *Coupon, items []catalog.ResolvedProduct) error {
	for _, it := range items {
		included := len(c.IncludedProducts) == 0 || contains(c.IncludedProducts, it.ID)
		if !included || contains(c.ExcludedProducts, it.ID) {
			return &RejectionError{Kind: ErrProductNotEligible, Code: c.Code, Subject: it.ID}
		}
	}

	for _, it := range items {
		if len(c.IncludedCategories) > 0 {
			for _, cat := range it.CategoryIDs {
				if !contains(c.IncludedCategories, cat) {
					return &RejectionError{Kind: ErrCategoryNotEligible, Code: c.Code, Subject: cat}
				}
			}
		}
		for _, cat := range c.ExcludedCategories {
			if it.InCategory(cat) {
				return &RejectionError{Kind: ErrCategoryNotEligible, Code: c.Code, Subject: cat}
			}
		}
	}
	return nil
}

// Discount computes the coupon discount for the given basis, rounded to two
// decimal places. Fixed discounts are clamped to the basis.
func Discount(c *Coupon, basis decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = c.Amount.Div(hundred).Mul(basis)
	default:
		amount = decimal.Min(c.Amount, basis)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
