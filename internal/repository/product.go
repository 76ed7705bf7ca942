package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/outlet-commerce/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT p.id, p.name, p.sku, p.image, p.regular_price, p.sale_price, p.brand_id,
		COALESCE(array_agg(pc.category_id ORDER BY pc.category_id) FILTER (WHERE pc.category_id IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		WHERE p.id = ANY($1)
		GROUP BY p.id`

	upsertProductSQL = `INSERT INTO products (id, name, sku, image, regular_price, sale_price, brand_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku, image = EXCLUDED.image,
			regular_price = EXCLUDED.regular_price, sale_price = EXCLUDED.sale_price, brand_id = EXCLUDED.brand_id`

	upsertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	clearProductCategoriesSQL = `DELETE FROM product_categories WHERE product_id = $1`

	linkProductCategorySQL = `INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns products matching any of the given IDs in one query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// UpsertCategory inserts or renames a category.
func (r *ProductRepository) UpsertCategory(ctx context.Context, id, name string) error {
	if _, err := r.pool.Exec(ctx, upsertCategorySQL, id, name); err != nil {
		return fmt.Errorf("upserting category %q: %w", id, err)
	}
	return nil
}

// Upsert inserts or replaces a product and its category links.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.SKU, p.Image, p.RegularPrice, p.SalePrice, p.BrandID,
		); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, clearProductCategoriesSQL, p.ID); err != nil {
			return fmt.Errorf("clearing categories of %q: %w", p.ID, err)
		}
		for _, c := range p.CategoryIDs {
			if _, err := tx.Exec(ctx, linkProductCategorySQL, p.ID, c); err != nil {
				return fmt.Errorf("linking %q to category %q: %w", p.ID, c, err)
			}
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Image, &p.RegularPrice, &p.SalePrice, &p.BrandID,
		&p.CategoryIDs,
	)
	return p, err
}
