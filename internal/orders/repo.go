package orders

import (
	"context"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Store interface {
	// Insert writes the order and its item snapshots and returns them with ids.
	Insert(ctx context.Context, q postgres.Querier, o Order) (Order, error)
	Get(ctx context.Context, q postgres.Querier, id int64) (Order, error)
	// GetForUpdate locks the order row until the transaction ends.
	GetForUpdate(ctx context.Context, q postgres.Querier, id int64) (Order, error)
	UpdateStatus(ctx context.Context, q postgres.Querier, id int64, s Status) (Order, error)
	// List returns orders of userID, or of every user when userID is 0.
	List(ctx context.Context, q postgres.Querier, userID int64, f Filter) ([]Order, error)
}

// Repo is the PostgreSQL Store.
type Repo struct{}

const orderColumns = `id, user_id, status, total_cents, created_at, updated_at`

func (r Repo) Insert(ctx context.Context, q postgres.Querier, o Order) (Order, error) {
	out, err := scanOrder(q.QueryRow(ctx, `
		INSERT INTO orders(user_id, status, total_cents)
		VALUES ($1, $2, $3)
		RETURNING `+orderColumns,
		o.UserID, string(o.Status), o.TotalCents))
	if err != nil {
		return Order{}, err
	}
	out.Items = make([]Item, 0, len(o.Items))
	for _, it := range o.Items {
		it.OrderID = out.ID
		err := q.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Quantity, it.UnitPriceCents).Scan(&it.ID)
		if err != nil {
			return Order{}, postgres.MapError(err)
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}

func (r Repo) Get(ctx context.Context, q postgres.Querier, id int64) (Order, error) {
	return r.load(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r Repo) GetForUpdate(ctx context.Context, q postgres.Querier, id int64) (Order, error) {
	return r.load(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r Repo) load(ctx context.Context, q postgres.Querier, sql string, id int64) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Order{}, err
	}
	byOrder, err := r.items(ctx, q, []int64{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = byOrder[o.ID]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return o, nil
}

func (Repo) UpdateStatus(ctx context.Context, q postgres.Querier, id int64, s Status) (Order, error) {
	return scanOrder(q.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1
		RETURNING `+orderColumns, id, string(s)))
}

func (r Repo) List(ctx context.Context, q postgres.Querier, userID int64, f Filter) ([]Order, error) {
	f = f.normalize()
	rows, err := q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::bigint = 0 OR user_id = $1) AND ($2::text = '' OR status = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`,
		userID, string(f.Status), f.Limit, f.Offset())
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	out := []Order{}
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	byOrder, err := r.items(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = byOrder[out[i].ID]
		if out[i].Items == nil {
			out[i].Items = []Item{}
		}
	}
	return out, nil
}

func (Repo) items(ctx context.Context, q postgres.Querier, orderIDs []int64) (map[int64][]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	out := make(map[int64][]Item, len(orderIDs))
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, postgres.MapError(err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, postgres.MapError(rows.Err())
}

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if postgres.IsNoRows(err) {
		return Order{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return Order{}, postgres.MapError(err)
	}
	o.Status = Status(status)
	return o, nil
}
