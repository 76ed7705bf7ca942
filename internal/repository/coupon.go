package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, amount, expiry, min_spend, max_spend,
		usage_limit_total, usage_limit_per_customer,
		included_products, excluded_products, included_categories, excluded_categories, blocked_customers`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE upper(code) = upper($1)`

	getCouponUsageSQL = `SELECT used FROM coupon_usages WHERE coupon_id = $1 AND customer_id = $2`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, discount_type = EXCLUDED.discount_type,
			amount = EXCLUDED.amount, expiry = EXCLUDED.expiry, min_spend = EXCLUDED.min_spend,
			max_spend = EXCLUDED.max_spend, usage_limit_total = EXCLUDED.usage_limit_total,
			usage_limit_per_customer = EXCLUDED.usage_limit_per_customer,
			included_products = EXCLUDED.included_products, excluded_products = EXCLUDED.excluded_products,
			included_categories = EXCLUDED.included_categories, excluded_categories = EXCLUDED.excluded_categories,
			blocked_customers = EXCLUDED.blocked_customers`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no coupon has the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CustomerUsage returns how many times the customer has redeemed the coupon.
func (r *CouponRepository) CustomerUsage(ctx context.Context, couponID, customerID string) (int, error) {
	var used int32
	err := r.pool.QueryRow(ctx, getCouponUsageSQL, couponID, customerID).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting usage of coupon %q: %w", couponID, err)
	}
	return int(used), nil
}

// Upsert inserts or replaces a coupon.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	var expiry *time.Time
	if !c.Expiry.IsZero() {
		expiry = &c.Expiry
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.Amount, expiry, c.MinSpend, c.MaxSpend,
		c.UsageLimitTotal, c.UsageLimitPerCustomer,
		nonNil(c.IncludedProducts), nonNil(c.ExcludedProducts),
		nonNil(c.IncludedCategories), nonNil(c.ExcludedCategories),
		nonNil(c.BlockedCustomers),
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		expiry       *time.Time
		total        int32
		perCustomer  int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Amount, &expiry, &c.MinSpend, &c.MaxSpend,
		&total, &perCustomer,
		&c.IncludedProducts, &c.ExcludedProducts, &c.IncludedCategories, &c.ExcludedCategories,
		&c.BlockedCustomers,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	if expiry != nil {
		c.Expiry = *expiry
	}
	c.UsageLimitTotal = int(total)
	c.UsageLimitPerCustomer = int(perCustomer)
	return c, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
