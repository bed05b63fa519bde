package catalog

import (
	"context"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

// CategoryRepo is the PostgreSQL CategoryStore.
type CategoryRepo struct{}

func (CategoryRepo) Insert(ctx context.Context, q postgres.Querier, name string) (Category, error) {
	return scanCategory(q.QueryRow(ctx, `INSERT INTO categories(name) VALUES ($1) RETURNING id, name, created_at`, name))
}

func (CategoryRepo) Get(ctx context.Context, q postgres.Querier, id int64) (Category, error) {
	return scanCategory(q.QueryRow(ctx, `SELECT id, name, created_at FROM categories WHERE id=$1`, id))
}

func (CategoryRepo) List(ctx context.Context, q postgres.Querier) ([]Category, error) {
	rows, err := q.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, postgres.MapError(rows.Err())
}

func (CategoryRepo) Rename(ctx context.Context, q postgres.Querier, id int64, name string) (Category, error) {
	return scanCategory(q.QueryRow(ctx, `UPDATE categories SET name=$2 WHERE id=$1 RETURNING id, name, created_at`, id, name))
}

func (CategoryRepo) Delete(ctx context.Context, q postgres.Querier, id int64) error {
	ct, err := q.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return postgres.MapError(err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("category not found")
	}
	return nil
}

func scanCategory(row interface{ Scan(dest ...any) error }) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
	if postgres.IsNoRows(err) {
		return Category{}, apperr.NotFound("category not found")
	}
	return c, postgres.MapError(err)
}
