// Package checkout turns a cart into a PENDING order. Every line is reserved
// in the stock ledger, the order is written and the cart is emptied in one
// transaction, so a failure on any line leaves no reservation and no order.
package checkout

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/cart"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Reserver interface {
	ReserveIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (inventory.Inventory, error)
}

// Orders is the part of the order lifecycle checkout needs.
type Orders interface {
	CreateIn(ctx context.Context, q postgres.Querier, o orders.Order) (orders.Order, error)
	Get(ctx context.Context, actor identity.Principal, orderID int64) (orders.Order, error)
}

// Idempotency maps a client-supplied key to the order it produced.
type Idempotency interface {
	// Claim returns claimed=true when the caller owns key, or the order id a
	// previous request stored under it.
	Claim(ctx context.Context, userID int64, key string) (orderID int64, claimed bool, err error)
	Remember(ctx context.Context, userID int64, key string, orderID int64) error
	Forget(ctx context.Context, userID int64, key string) error
}

type Service struct {
	tx     postgres.Transactor
	carts  cart.Store
	ledger Reserver
	orders Orders
	idem   Idempotency
	log    *zap.Logger
	tracer trace.Tracer
}

type Option func(*Service)

func WithIdempotency(i Idempotency) Option {
	return func(s *Service) { s.idem = i }
}

func NewService(tx postgres.Transactor, carts cart.Store, ledger Reserver, ord Orders, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		carts:  carts,
		ledger: ledger,
		orders: ord,
		log:    log,
		tracer: otel.Tracer("checkout"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checkout places an order from the principal's own cart.
func (s *Service) Checkout(ctx context.Context, p identity.Principal) (orders.Order, error) {
	return s.run(ctx, p, func(q postgres.Querier) (cart.Cart, error) {
		c, err := s.carts.GetOrCreate(ctx, q, p.ID)
		if err != nil {
			return cart.Cart{}, err
		}
		return s.carts.GetForUpdate(ctx, q, c.ID)
	})
}

// CreateOrder places an order from cartID, which must belong to p.
func (s *Service) CreateOrder(ctx context.Context, p identity.Principal, cartID int64) (orders.Order, error) {
	if cartID <= 0 {
		return orders.Order{}, apperr.Validation("cartId is required")
	}
	return s.run(ctx, p, func(q postgres.Querier) (cart.Cart, error) {
		c, err := s.carts.GetForUpdate(ctx, q, cartID)
		if err != nil {
			return cart.Cart{}, err
		}
		if c.UserID != p.ID {
			return cart.Cart{}, apperr.NotFound("cart not found")
		}
		return c, nil
	})
}

// CheckoutOnce is Checkout guarded by an idempotency key. A repeated key
// returns the order created by the first request.
func (s *Service) CheckoutOnce(ctx context.Context, p identity.Principal, key string) (o orders.Order, err error) {
	if key == "" || s.idem == nil {
		return s.Checkout(ctx, p)
	}
	existing, claimed, err := s.idem.Claim(ctx, p.ID, key)
	if err != nil {
		return orders.Order{}, err
	}
	if !claimed {
		if existing == 0 {
			return orders.Order{}, apperr.Conflict("checkout with this idempotency key is in progress")
		}
		return s.orders.Get(ctx, p, existing)
	}

	o, err = s.Checkout(ctx, p)
	if err != nil {
		if fErr := s.idem.Forget(ctx, p.ID, key); fErr != nil {
			s.log.Warn("idempotency key release failed", zap.String("key", key), zap.Error(fErr))
		}
		return orders.Order{}, err
	}
	if rErr := s.idem.Remember(ctx, p.ID, key, o.ID); rErr != nil {
		s.log.Warn("idempotency key store failed", zap.String("key", key), zap.Error(rErr))
	}
	return o, nil
}

func (s *Service) run(ctx context.Context, p identity.Principal, lock func(q postgres.Querier) (cart.Cart, error)) (orders.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(attribute.Int64("user.id", p.ID)))
	defer span.End()

	var placed orders.Order
	err := s.tx.InTx(ctx, func(q postgres.Querier) error {
		c, err := lock(q)
		if err != nil {
			return err
		}
		if c.Empty() {
			return apperr.EmptyCart()
		}

		items := make([]orders.Item, 0, len(c.Items))
		for _, line := range c.Items {
			items = append(items, orders.Item{
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPriceCents: line.UnitPriceCents,
			})
		}
		items = orders.ByProduct(items)
		for _, it := range items {
			if _, err := s.ledger.ReserveIn(ctx, q, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		placed, err = s.orders.CreateIn(ctx, q, orders.Order{UserID: c.UserID, Items: items})
		if err != nil {
			return err
		}
		return s.carts.ClearItems(ctx, q, c.ID)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.log.Info("checkout rejected",
			zap.Int64("user_id", p.ID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
		return orders.Order{}, err
	}

	span.SetAttributes(attribute.Int64("order.id", placed.ID))
	s.log.Info("order placed",
		zap.Int64("order_id", placed.ID),
		zap.Int64("user_id", placed.UserID),
		zap.Int("total_cents", placed.TotalCents))
	return placed, nil
}
