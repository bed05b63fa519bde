// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"time"

	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
	"github.com/ariefcatur/go-stock-ledger/internal/telemetry"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// Recorder appends an event inside the caller's transaction.
type Recorder interface {
	Enqueue(ctx context.Context, q postgres.Querier, e Event) error
}

// NewEvent builds a pending event carrying the trace context of ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) Event {
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		Headers:       telemetry.InjectMap(ctx),
		Status:        StatusPending,
	}
}
