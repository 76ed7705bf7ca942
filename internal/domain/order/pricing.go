package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
)

// DefaultVATRate is the VAT percentage reported on orders.
var DefaultVATRate = decimal.NewFromInt(5)

var hundred = decimal.NewFromInt(100)

// Pricing is the monetary breakdown of an order.
type Pricing struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	VATRate        decimal.Decimal
	// VAT is inclusive: it is reported but not added to Total.
	VAT   decimal.Decimal
	Total decimal.Decimal
}

// DiscountedPrice is the subtotal after discount, before delivery.
func (p Pricing) DiscountedPrice() decimal.Decimal {
	d := p.Subtotal.Sub(p.Discount)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Price computes order totals. Lines are charged at regular price when a
// coupon is applied and at sale-or-regular price otherwise. VAT is taken on
// the subtotal; Total = Subtotal - Discount + DeliveryCharge, floored at zero.
func Price(items []catalog.ResolvedProduct, withCoupon bool, discount, delivery, vatRate decimal.Decimal) Pricing {
	subtotal := catalog.EffectiveTotal(items)
	if withCoupon {
		subtotal = catalog.RegularTotal(items)
	}

	total := subtotal.Sub(discount).Add(delivery)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Pricing{
		Subtotal:       subtotal.Round(2),
		Discount:       discount.Round(2),
		DeliveryCharge: delivery.Round(2),
		VATRate:        vatRate,
		VAT:            vatRate.Div(hundred).Mul(subtotal).Round(2),
		Total:          total.Round(2),
	}
}

// Lines denormalizes resolved products into order lines.
func Lines(items []catalog.ResolvedProduct, withCoupon bool) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		unit := it.EffectivePrice()
		if withCoupon {
			unit = it.RegularPrice
		}
		lines[i] = Line{
			ProductID:    it.ID,
			Name:         it.Name,
			SKU:          it.SKU,
			Image:        it.Image,
			RegularPrice: it.RegularPrice,
			SalePrice:    it.SalePrice,
			UnitPrice:    unit,
			Quantity:     it.Quantity,
			LineTotal:    unit.Mul(it.Qty()).Round(2),
		}
	}
	return lines
}

// FormatNumber renders the human-readable order number PREFIX-NNNN-YYYYMMDD.
// The sequence is zero-padded to at least four digits.
func FormatNumber(prefix string, seq int64, at time.Time) string {
	return fmt.Sprintf("%s-%04d-%s", prefix, seq, at.Format("20060102"))
}
