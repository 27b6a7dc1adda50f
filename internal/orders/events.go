package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"

	EventVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Event* consts
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Qty             int    `json:"qty"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
	LineTotal       int64  `json:"line_total"`
}

// OrderCreatedPayload is the read-only snapshot handed to notification
// consumers.
type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	ExternalID string      `json:"external_id,omitempty"`
	OwnerID    string      `json:"owner_id"`
	Status     Status      `json:"status"`
	Contact    Contact     `json:"contact"`
	Note       string      `json:"note,omitempty"`
	Items      []ItemPrice `json:"items"`
	TotalPrice int64       `json:"total_price"`
	CreatedAt  time.Time   `json:"created_at"`
}

func NewOrderCreatedPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemPrice{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Qty:             l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase,
			LineTotal:       l.Total(),
		})
	}
	return OrderCreatedPayload{
		OrderID:    o.ID,
		ExternalID: o.ExternalID,
		OwnerID:    o.OwnerID,
		Status:     o.Status,
		Contact:    o.Contact,
		Note:       o.Note,
		Items:      items,
		TotalPrice: o.TotalPrice,
		CreatedAt:  o.CreatedAt,
	}
}
