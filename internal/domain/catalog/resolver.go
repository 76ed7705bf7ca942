// Package catalog resolves requested line items against the product catalog.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/product"
)

// Sentinel errors for line item validation.
var (
	ErrEmptyItems     = errors.New("items required")
	ErrInvalidProduct = errors.New("invalid product")
)

// InvalidProductError names the requested product ids that did not resolve.
type InvalidProductError struct {
	ProductIDs []string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product ids: %s", strings.Join(e.ProductIDs, ", "))
}

func (e *InvalidProductError) Unwrap() error { return ErrInvalidProduct }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// LineItem is a requested (product, quantity) pair.
type LineItem struct {
	ProductID string
	Quantity  int
}

// ResolvedProduct is a line item enriched with catalog data at order time.
type ResolvedProduct struct {
	product.Product
	Quantity int
}

// Qty returns the quantity as a decimal multiplier.
func (r ResolvedProduct) Qty() decimal.Decimal {
	return decimal.NewFromInt(int64(r.Quantity))
}

// Resolver fetches authoritative product records for line items.
type Resolver struct {
	products product.Repository
}

// NewResolver creates a Resolver backed by the given product repository.
func NewResolver(products product.Repository) *Resolver {
	return &Resolver{products: products}
}

// Merge validates items and folds repeated product ids into one line,
// summing quantities. First-seen order is preserved.
func Merge(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	merged := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// Resolve fetches every referenced product in one batch lookup and returns
// one ResolvedProduct per distinct product id. Missing ids fail with
// *InvalidProductError listing all of them.
func (r *Resolver) Resolve(ctx context.Context, items []LineItem) ([]ResolvedProduct, error) {
	lines, err := Merge(items)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := r.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	var missing []string
	resolved := make([]ResolvedProduct, 0, len(lines))
	for _, l := range lines {
		p, ok := productMap[l.ProductID]
		if !ok {
			missing = append(missing, l.ProductID)
			continue
		}
		resolved = append(resolved, ResolvedProduct{Product: p, Quantity: l.Quantity})
	}
	if len(missing) > 0 {
		return nil, &InvalidProductError{ProductIDs: missing}
	}

	return resolved, nil
}

// RegularTotal sums regular price times quantity.
func RegularTotal(items []ResolvedProduct) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.RegularPrice.Mul(it.Qty()))
	}
	return total
}

// EffectiveTotal sums sale-or-regular price times quantity.
func EffectiveTotal(items []ResolvedProduct) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.EffectivePrice().Mul(it.Qty()))
	}
	return total
}

// Markdown sums (regular - sale) times quantity across items.
func Markdown(items []ResolvedProduct) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Product.Markdown().Mul(it.Qty()))
	}
	return total
}
