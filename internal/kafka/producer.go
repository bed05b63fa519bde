package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a synchronous writer without a default topic; every
// message names its own. Hash balancing keeps one key on one partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		// outbox rows are marked sent only after the broker acked
		Async: false,
	}
}
