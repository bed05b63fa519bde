package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Store interface {
	Insert(ctx context.Context, q postgres.Querier, p NewProduct) (Product, error)
	Get(ctx context.Context, q postgres.Querier, id int64) (Product, error)
	GetBySlug(ctx context.Context, q postgres.Querier, slug string) (Product, error)
	List(ctx context.Context, q postgres.Querier, offset, limit int) ([]Product, error)
	Save(ctx context.Context, q postgres.Querier, p Product) (Product, error)
	Delete(ctx context.Context, q postgres.Querier, id int64) error
}

// Repo is the PostgreSQL Store.
type Repo struct{}

const productColumns = `id, name, description, sku, slug, price_cents, category_id, created_at, updated_at`

func (Repo) Insert(ctx context.Context, q postgres.Querier, p NewProduct) (Product, error) {
	return scanProduct(q.QueryRow(ctx, `
		INSERT INTO products(name, description, sku, slug, price_cents, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+productColumns,
		p.Name, p.Description, p.SKU, p.Slug, p.PriceCents, p.CategoryID))
}

func (Repo) Get(ctx context.Context, q postgres.Querier, id int64) (Product, error) {
	return scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (Repo) GetBySlug(ctx context.Context, q postgres.Querier, slug string) (Product, error) {
	return scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug=$1`, slug))
}

func (Repo) List(ctx context.Context, q postgres.Querier, offset, limit int) ([]Product, error) {
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, postgres.MapError(rows.Err())
}

func (Repo) Save(ctx context.Context, q postgres.Querier, p Product) (Product, error) {
	return scanProduct(q.QueryRow(ctx, `
		UPDATE products
		SET name=$2, description=$3, sku=$4, slug=$5, price_cents=$6, category_id=$7, updated_at=now()
		WHERE id=$1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.SKU, p.Slug, p.PriceCents, p.CategoryID))
}

func (Repo) Delete(ctx context.Context, q postgres.Querier, id int64) error {
	ct, err := q.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return postgres.MapError(err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Slug, &p.PriceCents, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if postgres.IsNoRows(err) {
		return Product{}, apperr.NotFound("product not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "products_category_id_fkey" {
		return Product{}, apperr.NotFound("category not found")
	}
	return p, postgres.MapError(err)
}
