package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-stock-ledger/internal/orders"
)

// StatusCache implements orders.StatusCache.
type StatusCache struct{ rdb redis.Cmdable }

func NewStatusCache(rdb redis.Cmdable) *StatusCache { return &StatusCache{rdb: rdb} }

func (c *StatusCache) SetStatus(ctx context.Context, orderID int64, s orders.CachedStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID int64) (orders.CachedStatus, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.CachedStatus{}, false, nil
	}
	if err != nil {
		return orders.CachedStatus{}, false, err
	}
	var s orders.CachedStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return orders.CachedStatus{}, false, err
	}
	return s, s.Status.Valid(), nil
}
