package orders

import "github.com/google/uuid"

const (
	TopicOrderCreated     = "checkout.order.created"
	TopicOrderStatus      = "checkout.order.status"
	TopicReleaseRequested = "checkout.inventory.release"
	TopicAccountPromoted  = "checkout.account.promoted"
)

// Partition key = order_id, so every event of one order stays ordered.
func PartitionKey(orderID uuid.UUID) []byte { return []byte(orderID.String()) }
