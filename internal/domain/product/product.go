package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is an authoritative catalog record used for pricing.
type Product struct {
	ID           string
	Name         string
	SKU          string
	Image        string
	RegularPrice decimal.Decimal
	// SalePrice is the marked-down price, if any.
	SalePrice   decimal.NullDecimal
	CategoryIDs []string
	BrandID     string
}

// EffectivePrice returns the sale price when set, otherwise the regular price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.RegularPrice
}

// Markdown returns regular minus sale price, or zero when there is no sale.
func (p Product) Markdown() decimal.Decimal {
	if !p.SalePrice.Valid {
		return decimal.Zero
	}
	return p.RegularPrice.Sub(p.SalePrice.Decimal)
}

// InCategory reports whether the product belongs to the given category.
func (p Product) InCategory(id string) bool {
	for _, c := range p.CategoryIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByIDs returns the products matching any of ids in a single lookup.
	// Unknown ids are silently absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
