package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderCancelled   = "OrderCancelled"
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
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

type ItemPayload struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string        `json:"order_id"`
	OrderNo    string        `json:"order_no"`
	UserID     string        `json:"user_id,omitempty"`
	Items      []ItemPayload `json:"items"`
	TotalCents int64         `json:"total_cents"`
	Provider   string        `json:"provider,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	OrderNo string `json:"order_no"`
	Reason  string `json:"reason,omitempty"`
}

type PaymentResultPayload struct {
	OrderID     string `json:"order_id"`
	OrderNo     string `json:"order_no"`
	Provider    string `json:"provider"`
	AmountCents int64  `json:"amount_cents"`
	ProviderTxn string `json:"provider_txn,omitempty"`
}

func ItemPayloads(items []Item) []ItemPayload {
	out := make([]ItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPayload{ProductID: it.ProductID, Name: it.Name, Qty: it.Quantity, UnitPriceCents: it.UnitPriceCents})
	}
	return out
}
