//go:build integration

package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/cart"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/checkout"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/outbox"
	"github.com/ariefcatur/go-stock-ledger/internal/testutil"
)

type pgEnv struct {
	catalog  *catalog.Service
	ledger   *inventory.Ledger
	carts    *cart.Service
	orders   *orders.Service
	checkout *checkout.Service
}

func newPGEnv(t *testing.T) *pgEnv {
	t.Helper()
	db := testutil.Postgres(t)
	log := zaptest.NewLogger(t)
	e := &pgEnv{}
	e.catalog = catalog.NewService(db, catalog.Repo{}, inventory.Repo{}, log)
	e.ledger = inventory.NewLedger(db, inventory.Repo{}, log)
	e.carts = cart.NewService(db, cart.Repo{}, catalog.Repo{})
	e.orders = orders.NewService(db, orders.Repo{}, e.ledger, outbox.Repo{DB: db}, log)
	e.checkout = checkout.NewService(db, cart.Repo{}, e.ledger, e.orders, log)
	return e
}

func (e *pgEnv) product(t *testing.T, price, available int) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := e.catalog.Create(ctx, catalog.NewProduct{Name: "item", PriceCents: price})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := e.ledger.SetLevels(ctx, p.ID, inventory.Levels{Available: available}); err != nil {
		t.Fatalf("set levels: %v", err)
	}
	return p.ID
}

func TestPostgresConcurrentReserves(t *testing.T) {
	e := newPGEnv(t)
	pid := e.product(t, 100, 25)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Reserve(ctx, pid, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("reserve: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 8 || rejected != 12 {
		t.Fatalf("expected 8 reserved and 12 rejected, got %d/%d", ok, rejected)
	}
	inv, err := e.ledger.Get(ctx, pid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inv.Available != 25 || inv.Reserved != 24 {
		t.Fatalf("unexpected levels %+v", inv)
	}
}

func TestPostgresCheckoutIsAllOrNothing(t *testing.T) {
	e := newPGEnv(t)
	ctx := context.Background()
	user := identity.Principal{ID: 10, Role: identity.RoleUser}
	plenty := e.product(t, 100, 10)
	scarce := e.product(t, 200, 1)

	for _, it := range []struct {
		pid int64
		qty int
	}{{plenty, 2}, {scarce, 2}} {
		if _, err := e.carts.UpsertItem(ctx, user, it.pid, it.qty); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if _, err := e.checkout.Checkout(ctx, user); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	inv, _ := e.ledger.Get(ctx, plenty)
	if inv.Reserved != 0 {
		t.Fatalf("first line must be rolled back, got %+v", inv)
	}
	c, _ := e.carts.Get(ctx, user)
	if len(c.Items) != 2 {
		t.Fatalf("cart must survive a failed checkout, got %d lines", len(c.Items))
	}
}

func TestPostgresPayAndCancelRace(t *testing.T) {
	e := newPGEnv(t)
	ctx := context.Background()
	user := identity.Principal{ID: 11, Role: identity.RoleUser}
	pid := e.product(t, 300, 5)

	if _, err := e.carts.UpsertItem(ctx, user, pid, 2); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	o, err := e.checkout.Checkout(ctx, user)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, op := range []func(context.Context, identity.Principal, int64) (orders.Order, error){e.orders.Pay, e.orders.Cancel} {
		wg.Add(1)
		go func(i int, op func(context.Context, identity.Principal, int64) (orders.Order, error)) {
			defer wg.Done()
			_, errs[i] = op(ctx, user, o.ID)
		}(i, op)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Fatalf("unexpected error %v", err)
			}
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("exactly one transition must win, errors: %v", errs)
	}

	got, err := e.orders.Get(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	inv, _ := e.ledger.Get(ctx, pid)
	switch got.Status {
	case orders.StatusPaid:
		if inv.Available != 3 || inv.Reserved != 0 {
			t.Fatalf("paid order must commit stock, got %+v", inv)
		}
	case orders.StatusCancelled:
		if inv.Available != 5 || inv.Reserved != 0 {
			t.Fatalf("cancelled order must release stock, got %+v", inv)
		}
	default:
		t.Fatalf("order still %s", got.Status)
	}

	list, err := e.orders.List(ctx, user, orders.Filter{Status: got.Status})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != o.ID || len(list[0].Items) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}
