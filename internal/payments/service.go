// Package payments consumes payment outcome events and drives the order
// lifecycle: an authorized payment pays the order, a failed one cancels it.
package payments

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	kafkax "github.com/ariefcatur/go-stock-ledger/internal/kafka"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
)

type Lifecycle interface {
	Pay(ctx context.Context, actor identity.Principal, orderID int64) (orders.Order, error)
	Cancel(ctx context.Context, actor identity.Principal, orderID int64) (orders.Order, error)
}

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Orders Lifecycle
	Dedup  Dedup
	Log    *zap.Logger
}

// HandlePaymentAuthorized is installed as the consumer handler of
// order.payment.authorized.
func (s *Service) HandlePaymentAuthorized(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, orders.EventPaymentAuthorized, func(env orders.Envelope) (int64, error) {
		p, err := kafkax.UnwrapPayload[orders.PaymentAuthorizedPayload](env.Payload)
		if err != nil {
			return 0, err
		}
		_, err = s.Orders.Pay(ctx, identity.System(), p.OrderID)
		return p.OrderID, err
	})
}

// HandlePaymentFailed is installed as the consumer handler of
// order.payment.failed.
func (s *Service) HandlePaymentFailed(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, orders.EventPaymentFailed, func(env orders.Envelope) (int64, error) {
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return 0, err
		}
		_, err = s.Orders.Cancel(ctx, identity.System(), p.OrderID)
		return p.OrderID, err
	})
}

func (s *Service) handle(ctx context.Context, m kafkago.Message, eventType string, apply func(orders.Envelope) (int64, error)) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message, nothing to retry
		s.Log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != eventType {
		return nil
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		s.Log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	orderID, err := apply(env)
	switch {
	case err == nil:
		s.Log.Info("payment event applied",
			zap.String("event_type", eventType),
			zap.String("event_id", env.EventID),
			zap.Int64("order_id", orderID))
	case retryable(err):
		return err
	default:
		// already settled, unknown order or stock mismatch: redelivery cannot fix it
		s.Log.Warn("payment event not applied",
			zap.String("event_type", eventType),
			zap.String("event_id", env.EventID),
			zap.Int64("order_id", orderID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

func retryable(err error) bool {
	return errors.Is(err, apperr.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
