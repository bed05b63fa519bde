package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer is satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *zap.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *zap.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

// Dispatch publishes one event keyed by its aggregate id, so events of one
// order land on one partition in order.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	headers := make([]kafka.Header, 0, len(e.Headers)+1)
	for k, v := range e.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(e.Type)})

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", zap.Int64("event_id", e.ID), zap.Error(err))
		return err
	}
	d.log.Debug("outbox dispatched", zap.Int64("event_id", e.ID), zap.String("type", e.Type))
	return nil
}
