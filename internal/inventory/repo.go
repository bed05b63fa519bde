package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

// Store is the persistence port of the ledger. GetForUpdate must hold the
// row lock until the surrounding transaction ends.
type Store interface {
	Get(ctx context.Context, q postgres.Querier, productID int64) (Inventory, error)
	GetForUpdate(ctx context.Context, q postgres.Querier, productID int64) (Inventory, error)
	Update(ctx context.Context, q postgres.Querier, productID int64, l Levels) (Inventory, error)
	Upsert(ctx context.Context, q postgres.Querier, productID int64, l Levels) (Inventory, error)
	Create(ctx context.Context, q postgres.Querier, productID int64) error
	// Delete is only called together with deleting the product itself.
	Delete(ctx context.Context, q postgres.Querier, productID int64) error
}

// Repo is the PostgreSQL Store.
type Repo struct{}

const selectInventory = `SELECT product_id, available, reserved, updated_at FROM inventory WHERE product_id=$1`

func (Repo) Get(ctx context.Context, q postgres.Querier, productID int64) (Inventory, error) {
	return scanOne(q.QueryRow(ctx, selectInventory, productID))
}

func (Repo) GetForUpdate(ctx context.Context, q postgres.Querier, productID int64) (Inventory, error) {
	return scanOne(q.QueryRow(ctx, selectInventory+` FOR UPDATE`, productID))
}

func (Repo) Update(ctx context.Context, q postgres.Querier, productID int64, l Levels) (Inventory, error) {
	return scanOne(q.QueryRow(ctx, `
		UPDATE inventory SET available=$2, reserved=$3, updated_at=now()
		WHERE product_id=$1
		RETURNING product_id, available, reserved, updated_at`,
		productID, l.Available, l.Reserved))
}

func (Repo) Upsert(ctx context.Context, q postgres.Querier, productID int64, l Levels) (Inventory, error) {
	inv, err := scanOne(q.QueryRow(ctx, `
		INSERT INTO inventory(product_id, available, reserved)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE
		SET available=EXCLUDED.available, reserved=EXCLUDED.reserved, updated_at=now()
		RETURNING product_id, available, reserved, updated_at`,
		productID, l.Available, l.Reserved))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Inventory{}, apperr.NotFound("product not found")
	}
	return inv, err
}

func (Repo) Create(ctx context.Context, q postgres.Querier, productID int64) error {
	_, err := q.Exec(ctx, `INSERT INTO inventory(product_id, available, reserved) VALUES ($1, 0, 0)`, productID)
	return postgres.MapError(err)
}

func (Repo) Delete(ctx context.Context, q postgres.Querier, productID int64) error {
	_, err := q.Exec(ctx, `DELETE FROM inventory WHERE product_id=$1`, productID)
	return postgres.MapError(err)
}

func scanOne(row interface{ Scan(dest ...any) error }) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ProductID, &inv.Available, &inv.Reserved, &inv.UpdatedAt)
	if postgres.IsNoRows(err) {
		return Inventory{}, apperr.NotFound("inventory not found")
	}
	if err != nil {
		return Inventory{}, postgres.MapError(err)
	}
	return inv, nil
}
