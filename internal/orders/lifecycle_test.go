package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
	"github.com/ariefcatur/go-stock-ledger/internal/testutil"
)

var (
	alice = identity.Principal{ID: 1, Role: identity.RoleUser}
	bob   = identity.Principal{ID: 2, Role: identity.RoleUser}
	admin = identity.Principal{ID: 99, Role: identity.RoleAdmin}
)

type memCache struct {
	mu sync.Mutex
	m  map[int64]orders.CachedStatus
}

func (c *memCache) SetStatus(_ context.Context, id int64, s orders.CachedStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = s
	return nil
}

func (c *memCache) GetStatus(_ context.Context, id int64) (orders.CachedStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[id]
	return s, ok, nil
}

type fixture struct {
	mem    *testutil.Mem
	ledger *inventory.Ledger
	svc    *orders.Service
	cache  *memCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := testutil.NewMem()
	log := zaptest.NewLogger(t)
	f := &fixture{mem: mem, cache: &memCache{m: map[int64]orders.CachedStatus{}}}
	f.ledger = inventory.NewLedger(mem, mem.InventoryStore(), log)
	f.svc = orders.NewService(mem, mem.OrderStore(), f.ledger, mem.Outbox(), log, orders.WithStatusCache(f.cache))
	return f
}

// place creates products with the given free stock, reserves qty of each and
// writes a PENDING order for owner, the way checkout does.
func (f *fixture) place(t *testing.T, owner identity.Principal, stock map[int]int) (orders.Order, []int64) {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewService(f.mem, f.mem.ProductStore(), f.mem.InventoryStore(), zaptest.NewLogger(t))

	var items []orders.Item
	var pids []int64
	for qty, available := range stock {
		p, err := cat.Create(ctx, catalog.NewProduct{Name: "p", PriceCents: 100})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.ledger.SetLevels(ctx, p.ID, inventory.Levels{Available: available}); err != nil {
			t.Fatalf("set levels: %v", err)
		}
		items = append(items, orders.Item{ProductID: p.ID, Quantity: qty, UnitPriceCents: 100})
		pids = append(pids, p.ID)
	}

	var o orders.Order
	err := f.mem.InTx(ctx, func(q postgres.Querier) error {
		for _, it := range orders.ByProduct(items) {
			if _, err := f.ledger.ReserveIn(ctx, q, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		var err error
		o, err = f.svc.CreateIn(ctx, q, orders.Order{UserID: owner.ID, Items: items})
		return err
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return o, pids
}

func (f *fixture) levels(t *testing.T, pid int64) inventory.Levels {
	t.Helper()
	inv, _ := f.mem.Inventory(pid)
	return inv.Levels()
}

func TestPayCommitsEveryLineOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, pids := f.place(t, alice, map[int]int{2: 5, 3: 3})
	if o.TotalCents != 500 || o.Status != orders.StatusPending {
		t.Fatalf("unexpected order %+v", o)
	}

	paid, err := f.svc.Pay(ctx, alice, o.ID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != orders.StatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	before := map[int64]inventory.Levels{}
	for _, pid := range pids {
		lv := f.levels(t, pid)
		if lv.Reserved != 0 {
			t.Fatalf("expected reservation committed, got %+v", lv)
		}
		before[pid] = lv
	}

	for _, op := range []func(context.Context, identity.Principal, int64) (orders.Order, error){f.svc.Pay, f.svc.Cancel} {
		if _, err := op(ctx, alice, o.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	}
	for _, pid := range pids {
		if got := f.levels(t, pid); got != before[pid] {
			t.Fatalf("rejected transition changed inventory: %+v -> %+v", before[pid], got)
		}
	}
}

func TestCancelReleasesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, pids := f.place(t, alice, map[int]int{4: 4})

	if _, err := f.svc.Cancel(ctx, alice, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.levels(t, pids[0]); got != (inventory.Levels{Available: 4}) {
		t.Fatalf("expected (4,0), got %+v", got)
	}
	if _, err := f.svc.Cancel(ctx, alice, o.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.svc.Pay(ctx, alice, o.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if got := f.levels(t, pids[0]); got != (inventory.Levels{Available: 4}) {
		t.Fatalf("expected (4,0) unchanged, got %+v", got)
	}
}

func TestConcurrentPayAndCancelSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, pids := f.place(t, alice, map[int]int{3: 10})

	var wg sync.WaitGroup
	results := make([]error, 2)
	ops := []func(context.Context, identity.Principal, int64) (orders.Order, error){f.svc.Pay, f.svc.Cancel}
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op func(context.Context, identity.Principal, int64) (orders.Order, error)) {
			defer wg.Done()
			_, results[i] = op(ctx, alice, o.ID)
		}(i, op)
	}
	wg.Wait()

	won := 0
	for _, err := range results {
		if err == nil {
			won++
		} else if !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one transition, got %d", won)
	}
	got := f.levels(t, pids[0])
	if got != (inventory.Levels{Available: 7}) && got != (inventory.Levels{Available: 10}) {
		t.Fatalf("unexpected levels %+v", got)
	}
}

func TestPayFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, pids := f.place(t, alice, map[int]int{2: 5})
	// an operator drained the reservation behind the order's back
	if _, err := f.ledger.SetLevels(ctx, pids[0], inventory.Levels{Available: 5}); err != nil {
		t.Fatalf("set levels: %v", err)
	}

	if _, err := f.svc.Pay(ctx, alice, o.ID); !errors.Is(err, apperr.ErrInsufficientReserved) {
		t.Fatalf("expected insufficient reserved, got %v", err)
	}
	got, err := f.svc.Get(ctx, alice, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != orders.StatusPending {
		t.Fatalf("expected PENDING, got %s", got.Status)
	}
}

func TestStatusWriteFailureRollsBackStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, pids := f.place(t, alice, map[int]int{2: 5})
	f.mem.Fail("orders.UpdateStatus", apperr.StoreUnavailable(errors.New("timeout")))

	if _, err := f.svc.Pay(ctx, alice, o.ID); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if got := f.levels(t, pids[0]); got != (inventory.Levels{Available: 5, Reserved: 2}) {
		t.Fatalf("expected (5,2) after rollback, got %+v", got)
	}
}

func TestOwnershipAndPrivilege(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.place(t, alice, map[int]int{1: 5})

	if _, err := f.svc.Get(ctx, bob, o.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Pay(ctx, bob, o.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Get(ctx, admin, o.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	if _, err := f.svc.Pay(ctx, identity.System(), o.ID); err != nil {
		t.Fatalf("system pay: %v", err)
	}
}

func TestListScopesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1, _ := f.place(t, alice, map[int]int{1: 5})
	f.place(t, alice, map[int]int{1: 5})
	f.place(t, bob, map[int]int{1: 5})
	if _, err := f.svc.Pay(ctx, alice, a1.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}

	mine, err := f.svc.List(ctx, alice, orders.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(mine))
	}
	paid, _ := f.svc.List(ctx, alice, orders.Filter{Status: orders.StatusPaid})
	if len(paid) != 1 || paid[0].ID != a1.ID {
		t.Fatalf("unexpected paid list %+v", paid)
	}
	all, _ := f.svc.List(ctx, admin, orders.Filter{})
	if len(all) != 3 {
		t.Fatalf("expected admin to see 3 orders, got %d", len(all))
	}
	page, _ := f.svc.List(ctx, alice, orders.Filter{Page: 2, Limit: 1})
	if len(page) != 1 {
		t.Fatalf("expected one order on page 2, got %d", len(page))
	}
	if _, err := f.svc.List(ctx, alice, orders.Filter{Status: "SHIPPED"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestStatusUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.place(t, alice, map[int]int{1: 5})

	st, err := f.svc.Status(ctx, alice, o.ID)
	if err != nil || st != orders.StatusPending {
		t.Fatalf("status: %s %v", st, err)
	}
	if _, ok := f.cache.m[o.ID]; ok {
		t.Fatalf("pending status must not be cached")
	}
	if _, err := f.svc.Cancel(ctx, alice, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c := f.cache.m[o.ID]; c.Status != orders.StatusCancelled || c.UserID != alice.ID {
		t.Fatalf("expected cache refreshed, got %+v", c)
	}
	st, err = f.svc.Status(ctx, alice, o.ID)
	if err != nil || st != orders.StatusCancelled {
		t.Fatalf("status: %s %v", st, err)
	}
	if _, err := f.svc.Status(ctx, bob, o.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cached entry must keep ownership, got %v", err)
	}
}

// pausingStore holds Get after it has read the row until resume is closed.
type pausingStore struct {
	orders.Store
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) Get(ctx context.Context, q postgres.Querier, id int64) (orders.Order, error) {
	o, err := p.Store.Get(ctx, q, id)
	close(p.read)
	<-p.resume
	return o, err
}

func TestStatusReadRacingPayKeepsPaidCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.place(t, alice, map[int]int{1: 5})

	store := &pausingStore{Store: f.mem.OrderStore(), read: make(chan struct{}), resume: make(chan struct{})}
	reader := orders.NewService(f.mem, store, f.ledger, f.mem.Outbox(), zaptest.NewLogger(t), orders.WithStatusCache(f.cache))

	done := make(chan orders.Status, 1)
	go func() {
		st, err := reader.Status(ctx, alice, o.ID)
		if err != nil {
			t.Errorf("status: %v", err)
		}
		done <- st
	}()

	<-store.read
	if _, err := f.svc.Pay(ctx, alice, o.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	close(store.resume)
	if st := <-done; st != orders.StatusPending {
		t.Fatalf("reader saw %s before the payment", st)
	}

	st, err := f.svc.Status(ctx, alice, o.ID)
	if err != nil || st != orders.StatusPaid {
		t.Fatalf("expected PAID after the race, got %s %v", st, err)
	}
	if c := f.cache.m[o.ID]; c.Status != orders.StatusPaid {
		t.Fatalf("cache holds %s for a paid order", c.Status)
	}
}

func TestTransitionsRecordEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.place(t, alice, map[int]int{2: 5})
	if _, err := f.svc.Pay(ctx, alice, o.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}

	events := f.mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected created and paid events, got %d", len(events))
	}
	if events[0].Type != orders.EventOrderCreated || events[1].Type != orders.EventOrderPaid {
		t.Fatalf("unexpected event types %s, %s", events[0].Type, events[1].Type)
	}
	var env orders.Envelope
	if err := json.Unmarshal(events[1].Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var p orders.OrderSettledPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.OrderID != o.ID || p.Status != orders.StatusPaid || len(p.Items) != 1 || p.Items[0].Qty != 2 {
		t.Fatalf("unexpected payload %+v", p)
	}
}
