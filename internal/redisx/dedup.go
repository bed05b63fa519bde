package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup records processed event ids per consumer. Mark is called only after
// the event was handled, so a crash in between means one redelivery.
type Dedup struct {
	rdb      redis.Cmdable
	consumer string
}

func NewDedup(rdb redis.Cmdable, consumer string) *Dedup {
	return &Dedup{rdb: rdb, consumer: consumer}
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, fmt.Sprintf(KeyDedup, d.consumer, eventID))
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, d.consumer, eventID), "1", TTLDedup).Err()
}
