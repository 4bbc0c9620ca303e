package redisx

import "time"

const (
	// Checkout idempotency: checkout:idempotency:{key} -> claim or stored response
	KeyIdemCheckout = "checkout:idempotency:%s"

	// Cache status order: order_status:{order_id} -> {"order_id": "...", "status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
