package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/internal/domain/outlet"
)

const (
	getCustomerByIDSQL = `SELECT id, first_name, last_name, email, phone
		FROM customers WHERE id = $1`

	getCustomerByContactSQL = `SELECT id, first_name, last_name, email, phone
		FROM customers
		WHERE ($1::text <> '' AND lower(email) = lower($1::text)) OR ($2::text <> '' AND phone = $2::text)
		ORDER BY created_at, id
		LIMIT 1`

	upsertCustomerSQL = `INSERT INTO customers (id, first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			email = EXCLUDED.email, phone = EXCLUDED.phone`

	getOutletByIDSQL = `SELECT id, name, city FROM outlets WHERE id = $1`

	upsertOutletSQL = `INSERT INTO outlets (id, name, city) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city`
)

var (
	_ customer.Repository = (*CustomerRepository)(nil)
	_ outlet.Repository   = (*OutletRepository)(nil)
)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindByID returns the customer with the given id.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return collectCustomer(rows)
}

// FindByEmailOrPhone returns the oldest customer matching either contact.
func (r *CustomerRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByContactSQL, email, phone)
	if err != nil {
		return nil, fmt.Errorf("finding customer by contact: %w", err)
	}
	return collectCustomer(rows)
}

// Upsert inserts or replaces a customer.
func (r *CustomerRepository) Upsert(ctx context.Context, c customer.Customer) error {
	if _, err := r.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.FirstName, c.LastName, c.Email, c.Phone); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}

func collectCustomer(rows pgx.Rows) (*customer.Customer, error) {
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var c customer.Customer
		err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("scanning customer: %w", err)
	}
	return &c, nil
}

// OutletRepository implements outlet.Repository backed by PostgreSQL.
type OutletRepository struct {
	pool *pgxpool.Pool
}

// NewOutletRepository returns an OutletRepository that uses the given pool.
func NewOutletRepository(pool *pgxpool.Pool) *OutletRepository {
	return &OutletRepository{pool: pool}
}

// FindByID returns the outlet with the given id.
func (r *OutletRepository) FindByID(ctx context.Context, id string) (*outlet.Outlet, error) {
	rows, err := r.pool.Query(ctx, getOutletByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting outlet %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (outlet.Outlet, error) {
		var o outlet.Outlet
		err := row.Scan(&o.ID, &o.Name, &o.City)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, outlet.ErrNotFound
		}
		return nil, fmt.Errorf("getting outlet %q: %w", id, err)
	}
	return &o, nil
}

// Upsert inserts or replaces an outlet.
func (r *OutletRepository) Upsert(ctx context.Context, o outlet.Outlet) error {
	if _, err := r.pool.Exec(ctx, upsertOutletSQL, o.ID, o.Name, o.City); err != nil {
		return fmt.Errorf("upserting outlet %q: %w", o.ID, err)
	}
	return nil
}
