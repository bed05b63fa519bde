// Package testutil provides an in-memory implementation of every store port
// for service tests. Transactions are serialized and roll back on error, so
// tests observe the same all-or-nothing behavior as PostgreSQL row locks.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/cart"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/outbox"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

var errNoSQL = errors.New("memstore: SQL is not supported")

type state struct {
	products   map[int64]catalog.Product
	categories map[int64]catalog.Category
	inventory  map[int64]inventory.Inventory
	carts      map[int64]cart.Cart // items live in cartItems
	cartItems  map[int64]cart.Item
	orders     map[int64]orders.Order
	outbox     []outbox.Event
	seq        int64
}

func (s *state) clone() *state {
	c := &state{
		products:   maps.Clone(s.products),
		categories: maps.Clone(s.categories),
		inventory:  maps.Clone(s.inventory),
		carts:      maps.Clone(s.carts),
		cartItems:  maps.Clone(s.cartItems),
		orders:     make(map[int64]orders.Order, len(s.orders)),
		outbox:     slices.Clone(s.outbox),
		seq:        s.seq,
	}
	for id, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		c.orders[id] = o
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Mem is a transactional in-memory database.
type Mem struct {
	txMu   sync.Mutex // held for the whole of InTx
	dataMu sync.Mutex // guards st for every single call
	st     *state
	faults map[string]error
	now    func() time.Time
}

func NewMem() *Mem {
	return &Mem{
		st: &state{
			products:   map[int64]catalog.Product{},
			categories: map[int64]catalog.Category{},
			inventory:  map[int64]inventory.Inventory{},
			carts:      map[int64]cart.Cart{},
			cartItems:  map[int64]cart.Item{},
			orders:     map[int64]orders.Order{},
		},
		faults: map[string]error{},
		now:    time.Now,
	}
}

// memQuerier marks whether a call runs inside InTx.
type memQuerier struct{ tx bool }

func (memQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}

func (memQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNoSQL }

func (memQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return errRow{} }

type errRow struct{}

func (errRow) Scan(...any) error { return errNoSQL }

func (m *Mem) Conn() postgres.Querier { return memQuerier{} }

// InTx runs fn with every other transaction excluded and restores the
// previous state when fn fails.
func (m *Mem) InTx(ctx context.Context, fn func(q postgres.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return apperr.StoreUnavailable(err)
	}

	m.dataMu.Lock()
	snap := m.st.clone()
	m.dataMu.Unlock()

	if err := fn(memQuerier{tx: true}); err != nil {
		m.dataMu.Lock()
		m.st = snap
		m.dataMu.Unlock()
		return err
	}
	return nil
}

// Fail makes the named operation (for example "orders.Insert") return err
// until cleared with a nil err.
func (m *Mem) Fail(op string, err error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (m *Mem) fault(op string) error { return m.faults[op] }

func (m *Mem) lock() func() {
	m.dataMu.Lock()
	return m.dataMu.Unlock
}

func requireTx(q postgres.Querier, op string) error {
	if mq, ok := q.(memQuerier); !ok || !mq.tx {
		return fmt.Errorf("memstore: %s outside a transaction", op)
	}
	return nil
}

// Inventory returns the current counters of productID without locking.
func (m *Mem) Inventory(productID int64) (inventory.Inventory, bool) {
	defer m.lock()()
	inv, ok := m.st.inventory[productID]
	return inv, ok
}

// Events returns a copy of the outbox.
func (m *Mem) Events() []outbox.Event {
	defer m.lock()()
	return slices.Clone(m.st.outbox)
}

func (m *Mem) OrderCount() int {
	defer m.lock()()
	return len(m.st.orders)
}

func (m *Mem) InventoryStore() inventory.Store      { return invStore{m} }
func (m *Mem) ProductStore() catalog.Store          { return productStore{m} }
func (m *Mem) CategoryStore() catalog.CategoryStore { return categoryStore{m} }
func (m *Mem) CartStore() cart.Store                { return cartStore{m} }
func (m *Mem) OrderStore() orders.Store             { return orderStore{m} }
func (m *Mem) Outbox() outbox.Recorder              { return outboxStore{m} }

// inventory

type invStore struct{ m *Mem }

func (s invStore) Get(_ context.Context, _ postgres.Querier, productID int64) (inventory.Inventory, error) {
	defer s.m.lock()()
	inv, ok := s.m.st.inventory[productID]
	if !ok {
		return inventory.Inventory{}, apperr.NotFound("inventory not found")
	}
	return inv, nil
}

func (s invStore) GetForUpdate(ctx context.Context, q postgres.Querier, productID int64) (inventory.Inventory, error) {
	if err := requireTx(q, "inventory.GetForUpdate"); err != nil {
		return inventory.Inventory{}, err
	}
	return s.Get(ctx, q, productID)
}

func (s invStore) Update(_ context.Context, _ postgres.Querier, productID int64, l inventory.Levels) (inventory.Inventory, error) {
	defer s.m.lock()()
	if err := s.m.fault("inventory.Update"); err != nil {
		return inventory.Inventory{}, err
	}
	if _, ok := s.m.st.inventory[productID]; !ok {
		return inventory.Inventory{}, apperr.NotFound("inventory not found")
	}
	if err := l.Validate(); err != nil {
		return inventory.Inventory{}, apperr.Conflict("check constraint failed on inventory_levels_check")
	}
	inv := inventory.Inventory{ProductID: productID, Available: l.Available, Reserved: l.Reserved, UpdatedAt: s.m.now()}
	s.m.st.inventory[productID] = inv
	return inv, nil
}

func (s invStore) Upsert(_ context.Context, _ postgres.Querier, productID int64, l inventory.Levels) (inventory.Inventory, error) {
	defer s.m.lock()()
	if _, ok := s.m.st.products[productID]; !ok {
		return inventory.Inventory{}, apperr.NotFound("product not found")
	}
	inv := inventory.Inventory{ProductID: productID, Available: l.Available, Reserved: l.Reserved, UpdatedAt: s.m.now()}
	s.m.st.inventory[productID] = inv
	return inv, nil
}

func (s invStore) Create(_ context.Context, _ postgres.Querier, productID int64) error {
	defer s.m.lock()()
	if _, ok := s.m.st.inventory[productID]; ok {
		return apperr.Conflict("unique constraint failed on inventory_pkey")
	}
	s.m.st.inventory[productID] = inventory.Inventory{ProductID: productID, UpdatedAt: s.m.now()}
	return nil
}

func (s invStore) Delete(_ context.Context, _ postgres.Querier, productID int64) error {
	defer s.m.lock()()
	delete(s.m.st.inventory, productID)
	return nil
}

// products

type productStore struct{ m *Mem }

func (s productStore) checkUnique(p catalog.Product) error {
	for _, o := range s.m.st.products {
		if o.ID == p.ID {
			continue
		}
		if p.SKU != nil && o.SKU != nil && *p.SKU == *o.SKU {
			return apperr.Conflict("unique constraint failed on products_sku_key")
		}
		if p.Slug != nil && o.Slug != nil && *p.Slug == *o.Slug {
			return apperr.Conflict("unique constraint failed on products_slug_key")
		}
	}
	if _, ok := s.m.st.categories[deref(p.CategoryID)]; p.CategoryID != nil && !ok {
		return apperr.NotFound("category not found")
	}
	return nil
}

func (s productStore) Insert(_ context.Context, _ postgres.Querier, n catalog.NewProduct) (catalog.Product, error) {
	defer s.m.lock()()
	now := s.m.now()
	p := catalog.Product{
		Name:        n.Name,
		Description: n.Description,
		SKU:         n.SKU,
		Slug:        n.Slug,
		PriceCents:  n.PriceCents,
		CategoryID:  n.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.checkUnique(p); err != nil {
		return catalog.Product{}, err
	}
	p.ID = s.m.st.next()
	s.m.st.products[p.ID] = p
	return p, nil
}

func (s productStore) Get(_ context.Context, _ postgres.Querier, id int64) (catalog.Product, error) {
	defer s.m.lock()()
	p, ok := s.m.st.products[id]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product not found")
	}
	return p, nil
}

func (s productStore) GetBySlug(_ context.Context, _ postgres.Querier, slug string) (catalog.Product, error) {
	defer s.m.lock()()
	for _, p := range s.m.st.products {
		if p.Slug != nil && *p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, apperr.NotFound("product not found")
}

func (s productStore) List(_ context.Context, _ postgres.Querier, offset, limit int) ([]catalog.Product, error) {
	defer s.m.lock()()
	ids := slices.Sorted(maps.Keys(s.m.st.products))
	var out []catalog.Product
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, s.m.st.products[ids[i]])
	}
	return out, nil
}

func (s productStore) Save(_ context.Context, _ postgres.Querier, p catalog.Product) (catalog.Product, error) {
	defer s.m.lock()()
	cur, ok := s.m.st.products[p.ID]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product not found")
	}
	if err := s.checkUnique(p); err != nil {
		return catalog.Product{}, err
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.m.now()
	s.m.st.products[p.ID] = p
	return p, nil
}

func (s productStore) Delete(_ context.Context, _ postgres.Querier, id int64) error {
	defer s.m.lock()()
	if _, ok := s.m.st.products[id]; !ok {
		return apperr.NotFound("product not found")
	}
	if _, ok := s.m.st.inventory[id]; ok {
		return apperr.Conflict("still referenced by inventory_product_id_fkey")
	}
	for _, it := range s.m.st.cartItems {
		if it.ProductID == id {
			return apperr.Conflict("still referenced by cart_items_product_id_fkey")
		}
	}
	for _, o := range s.m.st.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return apperr.Conflict("still referenced by order_items_product_id_fkey")
			}
		}
	}
	delete(s.m.st.products, id)
	return nil
}

// categories

type categoryStore struct{ m *Mem }

func deref(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func (s categoryStore) unique(id int64, name string) error {
	for _, c := range s.m.st.categories {
		if c.ID != id && c.Name == name {
			return apperr.Conflict("unique constraint failed on categories_name_key")
		}
	}
	return nil
}

func (s categoryStore) Insert(_ context.Context, _ postgres.Querier, name string) (catalog.Category, error) {
	defer s.m.lock()()
	if err := s.unique(0, name); err != nil {
		return catalog.Category{}, err
	}
	c := catalog.Category{ID: s.m.st.next(), Name: name, CreatedAt: s.m.now()}
	s.m.st.categories[c.ID] = c
	return c, nil
}

func (s categoryStore) Get(_ context.Context, _ postgres.Querier, id int64) (catalog.Category, error) {
	defer s.m.lock()()
	c, ok := s.m.st.categories[id]
	if !ok {
		return catalog.Category{}, apperr.NotFound("category not found")
	}
	return c, nil
}

func (s categoryStore) List(_ context.Context, _ postgres.Querier) ([]catalog.Category, error) {
	defer s.m.lock()()
	out := slices.Collect(maps.Values(s.m.st.categories))
	slices.SortFunc(out, func(a, b catalog.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s categoryStore) Rename(_ context.Context, _ postgres.Querier, id int64, name string) (catalog.Category, error) {
	defer s.m.lock()()
	c, ok := s.m.st.categories[id]
	if !ok {
		return catalog.Category{}, apperr.NotFound("category not found")
	}
	if err := s.unique(id, name); err != nil {
		return catalog.Category{}, err
	}
	c.Name = name
	s.m.st.categories[id] = c
	return c, nil
}

func (s categoryStore) Delete(_ context.Context, _ postgres.Querier, id int64) error {
	defer s.m.lock()()
	if _, ok := s.m.st.categories[id]; !ok {
		return apperr.NotFound("category not found")
	}
	for _, p := range s.m.st.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return apperr.Conflict("still referenced by products_category_id_fkey")
		}
	}
	delete(s.m.st.categories, id)
	return nil
}

// carts

type cartStore struct{ m *Mem }

func (s cartStore) withItems(c cart.Cart) cart.Cart {
	c.Items = []cart.Item{}
	for _, it := range s.m.st.cartItems {
		if it.CartID == c.ID {
			c.Items = append(c.Items, it)
		}
	}
	slices.SortFunc(c.Items, func(a, b cart.Item) int { return int(a.ID - b.ID) })
	return c
}

func (s cartStore) GetOrCreate(_ context.Context, _ postgres.Querier, userID int64) (cart.Cart, error) {
	defer s.m.lock()()
	for _, c := range s.m.st.carts {
		if c.UserID == userID {
			return s.withItems(c), nil
		}
	}
	now := s.m.now()
	c := cart.Cart{ID: s.m.st.next(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.m.st.carts[c.ID] = c
	return s.withItems(c), nil
}

func (s cartStore) GetForUpdate(_ context.Context, q postgres.Querier, cartID int64) (cart.Cart, error) {
	if err := requireTx(q, "cart.GetForUpdate"); err != nil {
		return cart.Cart{}, err
	}
	defer s.m.lock()()
	c, ok := s.m.st.carts[cartID]
	if !ok {
		return cart.Cart{}, apperr.NotFound("cart not found")
	}
	return s.withItems(c), nil
}

func (s cartStore) UpsertItem(_ context.Context, _ postgres.Querier, cartID, productID int64, qty, unitPriceCents int) (cart.Item, error) {
	defer s.m.lock()()
	for id, it := range s.m.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			it.Quantity = qty
			s.m.st.cartItems[id] = it
			return it, nil
		}
	}
	it := cart.Item{ID: s.m.st.next(), CartID: cartID, ProductID: productID, Quantity: qty, UnitPriceCents: unitPriceCents}
	s.m.st.cartItems[it.ID] = it
	return it, nil
}

func (s cartStore) owned(userID, itemID int64) (cart.Item, bool) {
	it, ok := s.m.st.cartItems[itemID]
	if !ok {
		return cart.Item{}, false
	}
	c, ok := s.m.st.carts[it.CartID]
	return it, ok && c.UserID == userID
}

func (s cartStore) UpdateItem(_ context.Context, _ postgres.Querier, userID, itemID int64, qty int) (cart.Item, error) {
	defer s.m.lock()()
	it, ok := s.owned(userID, itemID)
	if !ok {
		return cart.Item{}, apperr.NotFound("item not found")
	}
	it.Quantity = qty
	s.m.st.cartItems[itemID] = it
	return it, nil
}

func (s cartStore) DeleteItem(_ context.Context, _ postgres.Querier, userID, itemID int64) error {
	defer s.m.lock()()
	if _, ok := s.owned(userID, itemID); !ok {
		return apperr.NotFound("item not found")
	}
	delete(s.m.st.cartItems, itemID)
	return nil
}

func (s cartStore) ClearItems(_ context.Context, _ postgres.Querier, cartID int64) error {
	defer s.m.lock()()
	if err := s.m.fault("cart.ClearItems"); err != nil {
		return err
	}
	for id, it := range s.m.st.cartItems {
		if it.CartID == cartID {
			delete(s.m.st.cartItems, id)
		}
	}
	return nil
}

// orders

type orderStore struct{ m *Mem }

func (s orderStore) Insert(_ context.Context, _ postgres.Querier, o orders.Order) (orders.Order, error) {
	defer s.m.lock()()
	if err := s.m.fault("orders.Insert"); err != nil {
		return orders.Order{}, err
	}
	now := s.m.now()
	o.ID = s.m.st.next()
	o.CreatedAt, o.UpdatedAt = now, now
	items := make([]orders.Item, 0, len(o.Items))
	for _, it := range o.Items {
		it.ID = s.m.st.next()
		it.OrderID = o.ID
		items = append(items, it)
	}
	o.Items = items
	s.m.st.orders[o.ID] = o
	return o, nil
}

func (s orderStore) Get(_ context.Context, _ postgres.Querier, id int64) (orders.Order, error) {
	defer s.m.lock()()
	o, ok := s.m.st.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order not found")
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s orderStore) GetForUpdate(ctx context.Context, q postgres.Querier, id int64) (orders.Order, error) {
	if err := requireTx(q, "orders.GetForUpdate"); err != nil {
		return orders.Order{}, err
	}
	return s.Get(ctx, q, id)
}

func (s orderStore) UpdateStatus(_ context.Context, _ postgres.Querier, id int64, st orders.Status) (orders.Order, error) {
	defer s.m.lock()()
	if err := s.m.fault("orders.UpdateStatus"); err != nil {
		return orders.Order{}, err
	}
	o, ok := s.m.st.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order not found")
	}
	o.Status = st
	o.UpdatedAt = s.m.now()
	s.m.st.orders[id] = o
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s orderStore) List(_ context.Context, _ postgres.Querier, userID int64, f orders.Filter) ([]orders.Order, error) {
	defer s.m.lock()()
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = orders.DefaultLimit
	}
	f.Limit = min(f.Limit, orders.MaxLimit)

	ids := slices.Sorted(maps.Keys(s.m.st.orders))
	slices.Reverse(ids)
	out := []orders.Order{}
	skip := f.Offset()
	for _, id := range ids {
		o := s.m.st.orders[id]
		if userID != 0 && o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(out) == f.Limit {
			break
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	return out, nil
}

// outbox

type outboxStore struct{ m *Mem }

func (s outboxStore) Enqueue(_ context.Context, _ postgres.Querier, e outbox.Event) error {
	defer s.m.lock()()
	if err := s.m.fault("outbox.Enqueue"); err != nil {
		return err
	}
	e.ID = s.m.st.next()
	e.CreatedAt = s.m.now()
	e.Status = outbox.StatusPending
	s.m.st.outbox = append(s.m.st.outbox, e)
	return nil
}
