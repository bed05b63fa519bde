// Package orders owns the order lifecycle. An order is created PENDING by
// checkout and moves exactly once to PAID or CANCELLED; Pay commits the
// reserved stock of every line and Cancel releases it, both in the same
// transaction as the status change.
package orders

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/outbox"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

const (
	aggregateType = "order"
	producerName  = "stock-ledger"
)

// Ledger is the part of the stock ledger the lifecycle drives.
type Ledger interface {
	CommitIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (inventory.Inventory, error)
	ReleaseIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (inventory.Inventory, error)
}

type CachedStatus struct {
	UserID int64  `json:"userId"`
	Status Status `json:"status"`
}

// StatusCache is a read-through cache for order status lookups.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID int64, c CachedStatus) error
	GetStatus(ctx context.Context, orderID int64) (CachedStatus, bool, error)
}

type Service struct {
	tx     postgres.Transactor
	store  Store
	ledger Ledger
	events outbox.Recorder
	cache  StatusCache
	log    *zap.Logger
	tracer trace.Tracer
}

type Option func(*Service)

func WithStatusCache(c StatusCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(tx postgres.Transactor, store Store, ledger Ledger, events outbox.Recorder, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		store:  store,
		ledger: ledger,
		events: events,
		log:    log,
		tracer: otel.Tracer("order-lifecycle"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateIn inserts a PENDING order inside the caller's transaction and
// records OrderCreated next to it.
func (s *Service) CreateIn(ctx context.Context, q postgres.Querier, o Order) (Order, error) {
	o.Status = StatusPending
	o.TotalCents = Total(o.Items)
	created, err := s.store.Insert(ctx, q, o)
	if err != nil {
		return Order{}, err
	}
	if err := s.record(ctx, q, EventOrderCreated, created.ID, createdPayload(created)); err != nil {
		return Order{}, err
	}
	return created, nil
}

// Pay moves a PENDING order to PAID and commits every line's reservation.
func (s *Service) Pay(ctx context.Context, actor identity.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, StatusPaid, s.ledger.CommitIn, EventOrderPaid)
}

// Cancel moves a PENDING order to CANCELLED and releases every line's reservation.
func (s *Service) Cancel(ctx context.Context, actor identity.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, StatusCancelled, s.ledger.ReleaseIn, EventOrderCancelled)
}

type stockOp func(ctx context.Context, q postgres.Querier, productID int64, qty int) (inventory.Inventory, error)

func (s *Service) transition(ctx context.Context, actor identity.Principal, orderID int64, to Status, op stockOp, eventType string) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders."+string(to), trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.target_status", string(to)),
	))
	defer span.End()

	if orderID <= 0 {
		return Order{}, apperr.NotFound("order not found")
	}

	var out Order
	err := s.tx.InTx(ctx, func(q postgres.Querier) error {
		o, err := s.store.GetForUpdate(ctx, q, orderID)
		if err != nil {
			return err
		}
		if !visible(actor, o) {
			return apperr.NotFound("order not found")
		}
		if !CanTransition(o.Status, to) {
			return transitionError(o.Status, to)
		}
		for _, it := range ByProduct(o.Items) {
			if _, err := op(ctx, q, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		updated, err := s.store.UpdateStatus(ctx, q, o.ID, to)
		if err != nil {
			return err
		}
		updated.Items = o.Items
		if err := s.record(ctx, q, eventType, updated.ID, settledPayload(updated)); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.log.Info("order transition rejected",
			zap.Int64("order_id", orderID),
			zap.String("to", string(to)),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
		return Order{}, err
	}

	s.log.Info("order "+string(to),
		zap.Int64("order_id", out.ID),
		zap.Int64("user_id", out.UserID),
		zap.Int("items", len(out.Items)))
	s.cacheStatus(ctx, out)
	return out, nil
}

// Get returns an order visible to actor.
func (s *Service) Get(ctx context.Context, actor identity.Principal, orderID int64) (Order, error) {
	if orderID <= 0 {
		return Order{}, apperr.NotFound("order not found")
	}
	o, err := s.store.Get(ctx, s.tx.Conn(), orderID)
	if err != nil {
		return Order{}, err
	}
	if !visible(actor, o) {
		return Order{}, apperr.NotFound("order not found")
	}
	return o, nil
}

// List returns the actor's orders, newest first. Privileged actors see every order.
func (s *Service) List(ctx context.Context, actor identity.Principal, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("invalid status " + string(f.Status))
	}
	owner := actor.ID
	if actor.Privileged() {
		owner = 0
	}
	return s.store.List(ctx, s.tx.Conn(), owner, f)
}

// Status answers from the cache when possible and falls back to the store.
func (s *Service) Status(ctx context.Context, actor identity.Principal, orderID int64) (Status, error) {
	if orderID <= 0 {
		return "", apperr.NotFound("order not found")
	}
	if s.cache != nil {
		c, ok, err := s.cache.GetStatus(ctx, orderID)
		if err != nil {
			s.log.Warn("order status cache read failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
		if ok {
			if !actor.Privileged() && c.UserID != actor.ID {
				return "", apperr.NotFound("order not found")
			}
			return c.Status, nil
		}
	}
	o, err := s.Get(ctx, actor, orderID)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

// cacheStatus stores the status of a settled order. PENDING is never cached:
// a read that raced a transition could otherwise overwrite the settled status.
// Cache failures are logged only.
func (s *Service) cacheStatus(ctx context.Context, o Order) {
	if s.cache == nil || !o.Status.Terminal() {
		return
	}
	if err := s.cache.SetStatus(ctx, o.ID, CachedStatus{UserID: o.UserID, Status: o.Status}); err != nil {
		s.log.Warn("order status cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, q postgres.Querier, eventType string, orderID int64, payload any) error {
	env, err := NewEnvelope(eventType, producerName, orderID, payload)
	if err != nil {
		return err
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.events.Enqueue(ctx, q, outbox.NewEvent(ctx, aggregateType, string(PartitionKey(orderID)), eventType, b))
}

func visible(actor identity.Principal, o Order) bool {
	return actor.Privileged() || o.UserID == actor.ID
}
