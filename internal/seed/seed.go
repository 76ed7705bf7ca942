// Package seed reads shop fixture data: categories, products, customers,
// outlets and coupons.
package seed

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
	"github.com/xenking/outlet-commerce/internal/domain/product"
)

// Dataset is the on-disk fixture format.
type Dataset struct {
	Categories []Category `json:"categories"`
	Products   []Product  `json:"products"`
	Customers  []Customer `json:"customers"`
	Outlets    []Outlet   `json:"outlets"`
	Coupons    []Coupon   `json:"coupons"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	SKU          string              `json:"sku"`
	Image        string              `json:"image"`
	RegularPrice decimal.Decimal     `json:"regularPrice"`
	SalePrice    decimal.NullDecimal `json:"salePrice"`
	Categories   []string            `json:"categories"`
	Brand        string              `json:"brand"`
}

type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phoneNumber"`
}

type Outlet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// Coupon is also the record format of coupon import dumps.
type Coupon struct {
	ID                    string              `json:"id"`
	Code                  string              `json:"code"`
	DiscountType          string              `json:"discountType"`
	Amount                decimal.Decimal     `json:"amount"`
	Expiry                *time.Time          `json:"expiry,omitempty"`
	MinSpend              decimal.Decimal     `json:"minSpend"`
	MaxSpend              decimal.NullDecimal `json:"maxSpend"`
	UsageLimitTotal       int                 `json:"usageLimitTotal"`
	UsageLimitPerCustomer int                 `json:"usageLimitPerCustomer"`
	IncludedProducts      []string            `json:"includedProducts"`
	ExcludedProducts      []string            `json:"excludedProducts"`
	IncludedCategories    []string            `json:"includedCategories"`
	ExcludedCategories    []string            `json:"excludedCategories"`
	BlockedCustomers      []string            `json:"blockedCustomers"`
}

// Load reads a Dataset from a JSON file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads a Dataset from r and validates every record.
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, errors.Wrap(err, "decode dataset")
	}
	for _, p := range ds.Products {
		if p.ID == "" {
			return nil, errors.Errorf("product %q: id is required", p.Name)
		}
		if p.RegularPrice.IsNegative() {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
	}
	for _, c := range ds.Coupons {
		if _, err := c.Domain(); err != nil {
			return nil, err
		}
	}
	return &ds, nil
}

func (p Product) Domain() product.Product {
	return product.Product{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		Image:        p.Image,
		RegularPrice: p.RegularPrice,
		SalePrice:    p.SalePrice,
		CategoryIDs:  p.Categories,
		BrandID:      p.Brand,
	}
}

func (c Customer) Domain() customer.Customer {
	return customer.Customer(c)
}

func (o Outlet) Domain() outlet.Outlet {
	return outlet.Outlet(o)
}

// Domain validates the record and converts it. Discount types are matched
// case-insensitively.
func (c Coupon) Domain() (coupon.Coupon, error) {
	if c.ID == "" || strings.TrimSpace(c.Code) == "" {
		return coupon.Coupon{}, errors.Errorf("coupon %q: id and code are required", c.Code)
	}
	dt, err := discountType(c.DiscountType)
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "coupon %s", c.Code)
	}
	if c.Amount.IsNegative() {
		return coupon.Coupon{}, errors.Errorf("coupon %s: negative amount", c.Code)
	}

	out := coupon.Coupon{
		ID:                    c.ID,
		Code:                  strings.TrimSpace(c.Code),
		DiscountType:          dt,
		Amount:                c.Amount,
		MinSpend:              c.MinSpend,
		MaxSpend:              c.MaxSpend,
		UsageLimitTotal:       c.UsageLimitTotal,
		UsageLimitPerCustomer: c.UsageLimitPerCustomer,
		IncludedProducts:      c.IncludedProducts,
		ExcludedProducts:      c.ExcludedProducts,
		IncludedCategories:    c.IncludedCategories,
		ExcludedCategories:    c.ExcludedCategories,
		BlockedCustomers:      c.BlockedCustomers,
	}
	if c.Expiry != nil {
		out.Expiry = *c.Expiry
	}
	return out, nil
}

func discountType(s string) (coupon.DiscountType, error) {
	for _, t := range []coupon.DiscountType{coupon.DiscountPercentage, coupon.DiscountFixed} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown discount type %q", s)
}

// DomainProducts converts all products.
func (ds *Dataset) DomainProducts() []product.Product {
	out := make([]product.Product, len(ds.Products))
	for i, p := range ds.Products {
		out[i] = p.Domain()
	}
	return out
}

// DomainCustomers converts all customers.
func (ds *Dataset) DomainCustomers() []customer.Customer {
	out := make([]customer.Customer, len(ds.Customers))
	for i, c := range ds.Customers {
		out[i] = c.Domain()
	}
	return out
}

// DomainOutlets converts all outlets.
func (ds *Dataset) DomainOutlets() []outlet.Outlet {
	out := make([]outlet.Outlet, len(ds.Outlets))
	for i, o := range ds.Outlets {
		out[i] = o.Domain()
	}
	return out
}

// DomainCoupons converts all coupons. Decode has already validated them.
func (ds *Dataset) DomainCoupons() []coupon.Coupon {
	out := make([]coupon.Coupon, 0, len(ds.Coupons))
	for _, c := range ds.Coupons {
		if dc, err := c.Domain(); err == nil {
			out = append(out, dc)
		}
	}
	return out
}
