package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ariefcatur/go-realtime-checkout.git/internal/kafka"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderPaid        = "OrderPaid"
	EventOrderCancelled   = "OrderCancelled"
	EventOrderTransition  = "OrderStatusChanged"
	EventReleaseRequested = "InventoryReleaseRequested"
	EventAccountPromoted  = "GuestAccountPromoted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// EventSink is the publishing side of the event bus (satisfied by kafka.Producer).
type EventSink interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Emit wraps payload in a v1 envelope and publishes it keyed by order id.
// A nil sink drops the event.
func Emit(sink EventSink, topic, eventType, producer, traceID string, orderID uuid.UUID, payload any) {
	if sink == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID.String(),
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return
	}
	sink.Publish(topic, PartitionKey(orderID), value, kafkax.EventHeaders(eventType, env.EventVersion)...)
}

// ---- payloads ----

type ItemQty struct {
	VariantID uuid.UUID `json:"variant_id"`
	Qty       int       `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	UserID           *uuid.UUID      `json:"user_id,omitempty"`
	Items            []ItemQty       `json:"items"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	PaymentReference string          `json:"payment_reference"`
}

type StatusChangedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
}

type ReleaseRequestedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type AccountPromotedPayload struct {
	OrderID   uuid.UUID `json:"order_id"`
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Tier      string    `json:"tier"`
}
