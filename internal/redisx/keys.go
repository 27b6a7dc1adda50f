package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{owner_id}:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// order_status:{order_id} -> {"order_id": "...", "status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func idemKey(ownerID, externalID string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, ownerID, externalID)
}
func statusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }
func dedupKey(service, id string) string {
	return fmt.Sprintf(KeyDedup, service, id)
}
