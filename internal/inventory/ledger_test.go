package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/testutil"
)

func setup(t *testing.T, available int) (*inventory.Ledger, *testutil.Mem, int64) {
	t.Helper()
	mem := testutil.NewMem()
	log := zaptest.NewLogger(t)
	cat := catalog.NewService(mem, mem.ProductStore(), mem.InventoryStore(), log)
	p, err := cat.Create(context.Background(), catalog.NewProduct{Name: "Widget", PriceCents: 100})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	l := inventory.NewLedger(mem, mem.InventoryStore(), log)
	if available > 0 {
		if _, err := l.SetLevels(context.Background(), p.ID, inventory.Levels{Available: available}); err != nil {
			t.Fatalf("set levels: %v", err)
		}
	}
	return l, mem, p.ID
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	l, _, pid := setup(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, pid, 7)
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			rejected++
			if e, _ := apperr.As(err); e.Quantities["free"] != 3 {
				t.Fatalf("expected free=3 after the winner reserved, got %v", e.Quantities)
			}
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("expected one winner and one rejection, got ok=%d rejected=%d", ok, rejected)
	}
	inv, err := l.Get(ctx, pid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inv.Available != 10 || inv.Reserved != 7 {
		t.Fatalf("expected (10,7), got (%d,%d)", inv.Available, inv.Reserved)
	}
}

func TestManyConcurrentReservesStayWithinStock(t *testing.T) {
	l, _, pid := setup(t, 25)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, pid, 3); err == nil {
				mu.Lock()
				reserved += 3
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	inv, _ := l.Get(ctx, pid)
	if reserved > 25 || inv.Reserved != reserved {
		t.Fatalf("reserved %d, row says %d", reserved, inv.Reserved)
	}
	if reserved != 24 {
		t.Fatalf("expected 8 winners (24 units), got %d", reserved)
	}
}

func TestLedgerTransitions(t *testing.T) {
	l, _, pid := setup(t, 5)
	ctx := context.Background()

	inv, err := l.Reserve(ctx, pid, 5)
	if err != nil || inv.Reserved != 5 {
		t.Fatalf("reserve: %+v %v", inv, err)
	}
	inv, err = l.Commit(ctx, pid, 3)
	if err != nil || inv.Available != 2 || inv.Reserved != 2 {
		t.Fatalf("commit: %+v %v", inv, err)
	}
	inv, err = l.Release(ctx, pid, 2)
	if err != nil || inv.Available != 2 || inv.Reserved != 0 {
		t.Fatalf("release: %+v %v", inv, err)
	}
	if _, err := l.Commit(ctx, pid, 1); !errors.Is(err, apperr.ErrInsufficientReserved) {
		t.Fatalf("expected insufficient reserved, got %v", err)
	}
}

func TestLedgerRejectsUnknownAndInvalid(t *testing.T) {
	l, _, _ := setup(t, 0)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, 999, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := l.Release(ctx, 999, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := l.Reserve(ctx, 0, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	if _, err := l.SetLevels(ctx, 999, inventory.Levels{Available: 1}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetLevelsIsIdempotentAndValidated(t *testing.T) {
	l, mem, pid := setup(t, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		inv, err := l.SetLevels(ctx, pid, inventory.Levels{Available: 9, Reserved: 4})
		if err != nil {
			t.Fatalf("set levels #%d: %v", i, err)
		}
		if inv.Available != 9 || inv.Reserved != 4 {
			t.Fatalf("unexpected %+v", inv)
		}
	}
	if _, err := l.SetLevels(ctx, pid, inventory.Levels{Available: 2, Reserved: 3}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	inv, _ := mem.Inventory(pid)
	if inv.Available != 9 || inv.Reserved != 4 {
		t.Fatalf("rejected set must not change counters, got %+v", inv)
	}
}
