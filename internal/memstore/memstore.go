// Package memstore provides in-memory implementations of the domain
// repositories. Counters are guarded the same way the PostgreSQL store
// guards them: a redemption is checked and consumed under one lock per coupon.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/order"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
	"github.com/xenking/outlet-commerce/internal/domain/product"
)

var (
	_ product.Repository  = (*Products)(nil)
	_ customer.Repository = (*Customers)(nil)
	_ outlet.Repository   = (*Outlets)(nil)
	_ coupon.Repository   = (*Coupons)(nil)
	_ order.Repository    = (*Orders)(nil)
)

// Products is an in-memory product catalog.
type Products struct {
	mu   sync.RWMutex
	byID map[string]product.Product
}

// NewProducts returns a catalog holding ps.
func NewProducts(ps ...product.Product) *Products {
	s := &Products{byID: make(map[string]product.Product, len(ps))}
	for _, p := range ps {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a product.
func (s *Products) Put(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CategoryIDs = slices.Clone(p.CategoryIDs)
	s.byID[p.ID] = p
}

// GetByIDs implements product.Repository.
func (s *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			p.CategoryIDs = slices.Clone(p.CategoryIDs)
			out = append(out, p)
		}
	}
	return out, nil
}

// Customers is an in-memory customer directory.
type Customers struct {
	mu    sync.RWMutex
	byID  map[string]customer.Customer
	order []string
}

// NewCustomers returns a directory holding cs.
func NewCustomers(cs ...customer.Customer) *Customers {
	s := &Customers{byID: make(map[string]customer.Customer, len(cs))}
	for _, c := range cs {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a customer.
func (s *Customers) Put(c customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.byID[c.ID] = c
}

// FindByID implements customer.Repository.
func (s *Customers) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

// FindByEmailOrPhone implements customer.Repository. Customers are scanned
// in insertion order.
func (s *Customers) FindByEmailOrPhone(_ context.Context, email, phone string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		c := s.byID[id]
		if (email != "" && strings.EqualFold(c.Email, email)) || (phone != "" && c.Phone == phone) {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

// Outlets is an in-memory outlet directory.
type Outlets struct {
	mu   sync.RWMutex
	byID map[string]outlet.Outlet
}

// NewOutlets returns a directory holding outlets.
func NewOutlets(outlets ...outlet.Outlet) *Outlets {
	s := &Outlets{byID: make(map[string]outlet.Outlet, len(outlets))}
	for _, o := range outlets {
		s.byID[o.ID] = o
	}
	return s
}

// FindByID implements outlet.Repository.
func (s *Outlets) FindByID(_ context.Context, id string) (*outlet.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, outlet.ErrNotFound
	}
	return &o, nil
}

type usageKey struct {
	couponID   string
	customerID string
}

// Coupons is an in-memory coupon book.
type Coupons struct {
	mu     sync.RWMutex
	byID   map[string]*coupon.Coupon
	byCode map[string]string
	usage  map[usageKey]int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewCoupons returns a coupon book holding cs.
func NewCoupons(cs ...coupon.Coupon) *Coupons {
	s := &Coupons{
		byID:   make(map[string]*coupon.Coupon, len(cs)),
		byCode: make(map[string]string, len(cs)),
		usage:  make(map[usageKey]int),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, c := range cs {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a coupon.
func (s *Coupons) Put(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = &c
	s.byCode[strings.ToUpper(c.Code)] = c.ID
}

// FindByCode implements coupon.Repository. Codes match case-insensitively.
func (s *Coupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	c := *s.byID[id]
	return &c, nil
}

// CustomerUsage implements coupon.Repository.
func (s *Coupons) CustomerUsage(_ context.Context, couponID, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[usageKey{couponID, customerID}], nil
}

// Get returns a copy of the coupon with the given id.
func (s *Coupons) Get(id string) (coupon.Coupon, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return coupon.Coupon{}, false
	}
	return *c, true
}

func (s *Coupons) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// redeem checks both counters and consumes one use while the coupon's lock
// is held by the caller.
func (s *Coupons) redeem(r coupon.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[r.CouponID]
	if !ok {
		return errors.Wrapf(coupon.ErrInvalidCoupon, "coupon %s", r.CouponID)
	}
	key := usageKey{r.CouponID, r.CustomerID}
	if c.UsageLimitTotal <= 0 || s.usage[key] >= c.UsageLimitPerCustomer {
		return errors.Wrapf(coupon.ErrCouponExhausted, "coupon %s", r.CouponID)
	}
	c.UsageLimitTotal--
	s.usage[key]++
	return nil
}

// Orders is an in-memory order store.
type Orders struct {
	coupons *Coupons

	mu       sync.RWMutex
	seq      int64
	byID     map[string]*order.Order
	byNumber map[string]string
}

// NewOrders returns an empty order store that redeems against coupons.
func NewOrders(coupons *Coupons) *Orders {
	return &Orders{
		coupons:  coupons,
		byID:     make(map[string]*order.Order),
		byNumber: make(map[string]string),
	}
}

// NextSequence implements order.Repository.
func (s *Orders) NextSequence(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

// Create implements order.Repository.
func (s *Orders) Create(_ context.Context, o *order.Order, r *coupon.Redemption) error {
	if r != nil {
		l := s.coupons.lockFor(r.CouponID)
		l.Lock()
		defer l.Unlock()
		if err := s.coupons.redeem(*r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneOrder(o)
	s.byID[o.ID] = stored
	s.byNumber[o.Number] = o.ID
	return nil
}

// GetByID implements order.Repository.
func (s *Orders) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.lookup(id)
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// UpdateStatus implements order.Repository.
func (s *Orders) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	return s.update(id, func(o *order.Order) { o.Status = status })
}

// UpdateNote implements order.Repository.
func (s *Orders) UpdateNote(_ context.Context, id, note string) (*order.Order, error) {
	return s.update(id, func(o *order.Order) { o.Note = note })
}

// UpdateOutlet implements order.Repository.
func (s *Orders) UpdateOutlet(_ context.Context, id, outletID string) (*order.Order, error) {
	return s.update(id, func(o *order.Order) { o.OutletID = outletID })
}

// CustomerSummary implements order.Repository.
func (s *Orders) CustomerSummary(_ context.Context, customerID string) (*order.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &order.Summary{CustomerID: customerID, AverageOrderValue: decimal.Zero}
	total := decimal.Zero
	for _, o := range s.byID {
		if o.CustomerID != customerID {
			continue
		}
		sum.TotalOrders++
		total = total.Add(o.Total)
	}
	if sum.TotalOrders > 0 {
		sum.AverageOrderValue = total.Div(decimal.NewFromInt(int64(sum.TotalOrders)))
	}
	return sum, nil
}

// List implements order.Repository. Orders created at the same instant are
// ordered by number, highest first.
func (s *Orders) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	s.mu.RLock()
	matched := make([]order.Order, 0, len(s.byID))
	for _, o := range s.byID {
		if f.CustomerID == "" || o.CustomerID == f.CustomerID {
			matched = append(matched, *cloneOrder(o))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})

	f = f.Normalize()
	if f.Offset >= len(matched) {
		return []order.Order{}, nil
	}
	return matched[f.Offset:min(f.Offset+f.Limit, len(matched))], nil
}

// Len returns the number of stored orders.
func (s *Orders) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Orders) lookup(id string) (*order.Order, bool) {
	if o, ok := s.byID[id]; ok {
		return o, true
	}
	if oid, ok := s.byNumber[id]; ok {
		return s.byID[oid], true
	}
	return nil, false
}

func (s *Orders) update(id string, fn func(o *order.Order)) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.lookup(id)
	if !ok {
		return nil, order.ErrNotFound
	}
	fn(o)
	o.UpdatedAt = time.Now()
	return cloneOrder(o), nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	return &c
}
