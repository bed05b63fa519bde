package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// CheckoutKeys implements checkout.Idempotency.
type CheckoutKeys struct{ rdb redis.Cmdable }

func NewCheckoutKeys(rdb redis.Cmdable) *CheckoutKeys { return &CheckoutKeys{rdb: rdb} }

// Claim sets a short-lived pending marker with SETNX. When the key is taken
// it returns the stored order id, or 0 while the first request is running.
func (k *CheckoutKeys) Claim(ctx context.Context, userID int64, key string) (int64, bool, error) {
	rk := fmt.Sprintf(KeyIdemCheckout, userID, key)
	ok, err := k.rdb.SetNX(ctx, rk, pendingMarker, TTLIdemPending).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}
	v, err := k.rdb.Get(ctx, rk).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as in progress
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if v == pendingMarker {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency value %q: %w", v, err)
	}
	return id, false, nil
}

func (k *CheckoutKeys) Remember(ctx context.Context, userID int64, key string, orderID int64) error {
	return k.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), strconv.FormatInt(orderID, 10), TTLIdempotency).Err()
}

func (k *CheckoutKeys) Forget(ctx context.Context, userID int64, key string) error {
	return k.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Err()
}
