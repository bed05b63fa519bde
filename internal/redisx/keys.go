package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id | "pending"
	KeyIdemCheckout = "idem:checkout:%d:%s"

	// Order status cache: order_status:{order_id} -> {"userId": ..., "status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
