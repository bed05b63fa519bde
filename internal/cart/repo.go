package cart

import (
	"context"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Store interface {
	// GetOrCreate returns the user's cart with its items, creating it if absent.
	GetOrCreate(ctx context.Context, q postgres.Querier, userID int64) (Cart, error)
	// GetForUpdate locks the cart row and returns it with its items.
	GetForUpdate(ctx context.Context, q postgres.Querier, cartID int64) (Cart, error)
	UpsertItem(ctx context.Context, q postgres.Querier, cartID, productID int64, qty, unitPriceCents int) (Item, error)
	// UpdateItem and DeleteItem only match items in userID's cart.
	UpdateItem(ctx context.Context, q postgres.Querier, userID, itemID int64, qty int) (Item, error)
	DeleteItem(ctx context.Context, q postgres.Querier, userID, itemID int64) error
	ClearItems(ctx context.Context, q postgres.Querier, cartID int64) error
}

// Repo is the PostgreSQL Store.
type Repo struct{}

func (r Repo) GetOrCreate(ctx context.Context, q postgres.Querier, userID int64) (Cart, error) {
	if _, err := q.Exec(ctx, `INSERT INTO carts(user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Cart{}, postgres.MapError(err)
	}
	var c Cart
	err := q.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, postgres.MapError(err)
	}
	c.Items, err = r.items(ctx, q, c.ID)
	return c, err
}

func (r Repo) GetForUpdate(ctx context.Context, q postgres.Querier, cartID int64) (Cart, error) {
	var c Cart
	err := q.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id=$1 FOR UPDATE`, cartID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if postgres.IsNoRows(err) {
		return Cart{}, apperr.NotFound("cart not found")
	}
	if err != nil {
		return Cart{}, postgres.MapError(err)
	}
	c.Items, err = r.items(ctx, q, c.ID)
	return c, err
}

func (Repo) items(ctx context.Context, q postgres.Querier, cartID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, cart_id, product_id, quantity, unit_price_cents
		FROM cart_items WHERE cart_id=$1 ORDER BY id`, cartID)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, postgres.MapError(err)
		}
		items = append(items, it)
	}
	return items, postgres.MapError(rows.Err())
}

func (Repo) UpsertItem(ctx context.Context, q postgres.Querier, cartID, productID int64, qty, unitPriceCents int) (Item, error) {
	var it Item
	err := q.QueryRow(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity=EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, unit_price_cents`,
		cartID, productID, qty, unitPriceCents).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPriceCents)
	if err != nil {
		return Item{}, postgres.MapError(err)
	}
	_, err = q.Exec(ctx, `UPDATE carts SET updated_at=now() WHERE id=$1`, cartID)
	return it, postgres.MapError(err)
}

func (Repo) UpdateItem(ctx context.Context, q postgres.Querier, userID, itemID int64, qty int) (Item, error) {
	var it Item
	err := q.QueryRow(ctx, `
		UPDATE cart_items ci SET quantity=$3
		FROM carts c
		WHERE ci.id=$2 AND ci.cart_id=c.id AND c.user_id=$1
		RETURNING ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.unit_price_cents`,
		userID, itemID, qty).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPriceCents)
	if postgres.IsNoRows(err) {
		return Item{}, apperr.NotFound("item not found")
	}
	return it, postgres.MapError(err)
}

func (Repo) DeleteItem(ctx context.Context, q postgres.Querier, userID, itemID int64) error {
	ct, err := q.Exec(ctx, `
		DELETE FROM cart_items ci USING carts c
		WHERE ci.id=$2 AND ci.cart_id=c.id AND c.user_id=$1`, userID, itemID)
	if err != nil {
		return postgres.MapError(err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("item not found")
	}
	return nil
}

func (Repo) ClearItems(ctx context.Context, q postgres.Querier, cartID int64) error {
	_, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return postgres.MapError(err)
}
