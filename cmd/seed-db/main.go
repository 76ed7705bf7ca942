package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/outlet-commerce/internal/repository"
	"github.com/xenking/outlet-commerce/internal/seed"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/shop.json", "path to the shop fixture")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	ds, err := seed.Load(seedFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, ds); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedPeople(ctx, pool, ds); err != nil {
		return errors.Wrap(err, "seed customers and outlets")
	}
	if err := seedCoupons(ctx, pool, ds); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, ds *seed.Dataset) error {
	products := repository.NewProductRepository(pool)

	for _, c := range ds.Categories {
		if err := products.UpsertCategory(ctx, c.ID, c.Name); err != nil {
			return errors.Wrapf(err, "upsert category %s", c.ID)
		}
	}
	slog.Info("upserted categories", slog.Int("count", len(ds.Categories)))

	for _, p := range ds.DomainProducts() {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedPeople(ctx context.Context, pool *pgxpool.Pool, ds *seed.Dataset) error {
	customers := repository.NewCustomerRepository(pool)
	for _, c := range ds.DomainCustomers() {
		if err := customers.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}
	slog.Info("upserted customers", slog.Int("count", len(ds.Customers)))

	outlets := repository.NewOutletRepository(pool)
	for _, o := range ds.DomainOutlets() {
		if err := outlets.Upsert(ctx, o); err != nil {
			return errors.Wrapf(err, "upsert outlet %s", o.ID)
		}
	}
	slog.Info("upserted outlets", slog.Int("count", len(ds.Outlets)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, ds *seed.Dataset) error {
	coupons := repository.NewCouponRepository(pool)
	for _, c := range ds.DomainCoupons() {
		if err := coupons.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("type", string(c.DiscountType)))
	}
	return nil
}
