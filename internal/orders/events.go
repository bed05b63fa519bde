package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated      = "OrderCreated"
	EventOrderPaid         = "OrderPaid"
	EventOrderCancelled    = "OrderCancelled"
	EventPaymentAuthorized = "PaymentAuthorized"
	EventPaymentFailed     = "PaymentFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer string, orderID int64, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       b,
	}, nil
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type ItemPrice struct {
	ProductID  int64 `json:"product_id"`
	Qty        int   `json:"qty"`
	PriceCents int   `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    int64       `json:"order_id"`
	UserID     int64       `json:"user_id"`
	Items      []ItemPrice `json:"items"`
	TotalCents int         `json:"total_cents"`
}

// OrderSettledPayload is shared by OrderPaid and OrderCancelled.
type OrderSettledPayload struct {
	OrderID int64     `json:"order_id"`
	Status  Status    `json:"status"`
	Items   []ItemQty `json:"items"`
}

type PaymentAuthorizedPayload struct {
	OrderID     int64  `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int    `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"` // e.g. INSUFFICIENT_FUNDS
}

func createdPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, PriceCents: it.UnitPriceCents})
	}
	return OrderCreatedPayload{OrderID: o.ID, UserID: o.UserID, Items: items, TotalCents: o.TotalCents}
}

func settledPayload(o Order) OrderSettledPayload {
	items := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return OrderSettledPayload{OrderID: o.ID, Status: o.Status, Items: items}
}
