package payments

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	kafkax "github.com/ariefcatur/go-stock-ledger/internal/kafka"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
)

type call struct {
	op      string
	orderID int64
	actor   identity.Principal
}

type fakeLifecycle struct {
	calls []call
	err   error
}

func (f *fakeLifecycle) Pay(_ context.Context, actor identity.Principal, id int64) (orders.Order, error) {
	f.calls = append(f.calls, call{"pay", id, actor})
	return orders.Order{ID: id, Status: orders.StatusPaid}, f.err
}

func (f *fakeLifecycle) Cancel(_ context.Context, actor identity.Principal, id int64) (orders.Order, error) {
	f.calls = append(f.calls, call{"cancel", id, actor})
	return orders.Order{ID: id, Status: orders.StatusCancelled}, f.err
}

type memDedup map[string]bool

func (d memDedup) Seen(_ context.Context, id string) (bool, error) { return d[id], nil }
func (d memDedup) Mark(_ context.Context, id string) error         { d[id] = true; return nil }

func message(t *testing.T, eventType string, orderID int64, payload any) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "payment-gateway", orderID, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return kafkago.Message{Key: orders.PartitionKey(orderID), Value: kafkax.MustMarshal(env)}
}

func TestAuthorizedPaysOnceAsSystem(t *testing.T) {
	lc := &fakeLifecycle{}
	dd := memDedup{}
	svc := &Service{Orders: lc, Dedup: dd, Log: zaptest.NewLogger(t)}
	m := message(t, orders.EventPaymentAuthorized, 7, orders.PaymentAuthorizedPayload{OrderID: 7, PaymentRef: "pay_1", AmountCents: 500})

	for i := 0; i < 2; i++ {
		if err := svc.HandlePaymentAuthorized(context.Background(), m); err != nil {
			t.Fatalf("handle #%d: %v", i, err)
		}
	}
	if len(lc.calls) != 1 {
		t.Fatalf("expected one pay call, got %d", len(lc.calls))
	}
	c := lc.calls[0]
	if c.op != "pay" || c.orderID != 7 || c.actor.Role != identity.RoleSystem {
		t.Fatalf("unexpected call %+v", c)
	}
}

func TestFailedCancels(t *testing.T) {
	lc := &fakeLifecycle{}
	svc := &Service{Orders: lc, Dedup: memDedup{}, Log: zaptest.NewLogger(t)}
	m := message(t, orders.EventPaymentFailed, 9, orders.PaymentFailedPayload{OrderID: 9, Reason: "INSUFFICIENT_FUNDS"})

	if err := svc.HandlePaymentFailed(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(lc.calls) != 1 || lc.calls[0].op != "cancel" || lc.calls[0].orderID != 9 {
		t.Fatalf("unexpected calls %+v", lc.calls)
	}
}

func TestInvalidTransitionIsHandled(t *testing.T) {
	lc := &fakeLifecycle{err: apperr.InvalidTransition("cannot move order from PAID to PAID")}
	dd := memDedup{}
	svc := &Service{Orders: lc, Dedup: dd, Log: zaptest.NewLogger(t)}
	m := message(t, orders.EventPaymentAuthorized, 3, orders.PaymentAuthorizedPayload{OrderID: 3})

	if err := svc.HandlePaymentAuthorized(context.Background(), m); err != nil {
		t.Fatalf("expected redelivery to be acknowledged, got %v", err)
	}
	if len(dd) != 1 {
		t.Fatalf("expected event marked as processed")
	}
}

func TestStoreUnavailableIsRetried(t *testing.T) {
	lc := &fakeLifecycle{err: apperr.StoreUnavailable(errors.New("conn reset"))}
	dd := memDedup{}
	svc := &Service{Orders: lc, Dedup: dd, Log: zaptest.NewLogger(t)}
	m := message(t, orders.EventPaymentAuthorized, 3, orders.PaymentAuthorizedPayload{OrderID: 3})

	if err := svc.HandlePaymentAuthorized(context.Background(), m); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if len(dd) != 0 {
		t.Fatalf("failed event must not be marked")
	}
}

func TestIgnoresOtherEventsAndGarbage(t *testing.T) {
	lc := &fakeLifecycle{}
	svc := &Service{Orders: lc, Dedup: memDedup{}, Log: zaptest.NewLogger(t)}

	other := message(t, orders.EventOrderCreated, 1, orders.OrderCreatedPayload{OrderID: 1})
	if err := svc.HandlePaymentAuthorized(context.Background(), other); err != nil {
		t.Fatalf("other event: %v", err)
	}
	if err := svc.HandlePaymentFailed(context.Background(), kafkago.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("garbage: %v", err)
	}
	if len(lc.calls) != 0 {
		t.Fatalf("expected no lifecycle calls, got %+v", lc.calls)
	}
}
