package app

import (
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/order"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
	"github.com/xenking/outlet-commerce/internal/domain/product"
	"github.com/xenking/outlet-commerce/internal/memstore"
	"github.com/xenking/outlet-commerce/internal/repository"
	"github.com/xenking/outlet-commerce/internal/seed"
	"github.com/xenking/outlet-commerce/pkg/health"
)

// stores bundles the persistence ports of one backend.
type stores struct {
	products  product.Repository
	customers customer.Repository
	outlets   outlet.Repository
	coupons   coupon.Repository
	orders    order.Repository
	close     func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*stores, error) {
	switch cfg.Store {
	case StoreMemory:
		return openMemory(lg, cfg.SeedFile)
	default:
		return openPostgres(ctx, cfg.DatabaseURL, hs)
	}
}

func openPostgres(ctx context.Context, databaseURL string, hs *health.Health) (*stores, error) {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	return &stores{
		products:  repository.NewProductRepository(pool),
		customers: repository.NewCustomerRepository(pool),
		outlets:   repository.NewOutletRepository(pool),
		coupons:   repository.NewCouponRepository(pool),
		orders:    repository.NewOrderRepository(pool),
		close:     pool.Close,
	}, nil
}

// openMemory serves from process memory, preloaded with the seed fixture
// when it exists. Orders are lost on restart.
func openMemory(lg *zap.Logger, seedFile string) (*stores, error) {
	ds := &seed.Dataset{}
	if seedFile != "" {
		loaded, err := seed.Load(seedFile)
		switch {
		case err == nil:
			ds = loaded
		case errors.Is(err, os.ErrNotExist):
			lg.Warn("Seed file not found, starting empty", zap.String("path", seedFile))
		default:
			return nil, errors.Wrap(err, "load seed")
		}
	}
	lg.Warn("Using in-memory store",
		zap.Int("products", len(ds.Products)),
		zap.Int("coupons", len(ds.Coupons)),
	)

	coupons := memstore.NewCoupons(ds.DomainCoupons()...)
	return &stores{
		products:  memstore.NewProducts(ds.DomainProducts()...),
		customers: memstore.NewCustomers(ds.DomainCustomers()...),
		outlets:   memstore.NewOutlets(ds.DomainOutlets()...),
		coupons:   coupons,
		orders:    memstore.NewOrders(coupons),
		close:     func() {},
	}, nil
}
