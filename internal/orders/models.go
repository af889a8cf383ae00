package orders

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type Order struct {
	ID              string    `json:"id"`
	OrderNo         string    `json:"order_no"`
	UserID          string    `json:"user_id,omitempty"`
	GuestID         string    `json:"guest_id,omitempty"`
	Status          Status    `json:"status"`
	SubtotalCents   int64     `json:"subtotal_cents"`
	ShippingCents   int64     `json:"shipping_cents"`
	TotalCents      int64     `json:"total_cents"`
	ShippingAddress string    `json:"shipping_address"`
	Note            string    `json:"note,omitempty"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Items           []Item    `json:"items,omitempty"`
}

// Item is the immutable line snapshot taken at checkout. ProductID is a weak
// reference: later product edits or deletion never touch a placed order.
type Item struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address"`
	Note            string `json:"note"`
}

func (in CheckoutInput) Validate() error {
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return errors.New("shipping address is required")
	}
	return nil
}

// NewOrderNo generates the human-readable order number, e.g.
// ATL-1735689600123-9F3C.
func NewOrderNo() string {
	b := make([]byte, 2)
	_, _ = rand.Read(b)
	return fmt.Sprintf("ATL-%d-%s", time.Now().UnixMilli(), strings.ToUpper(hex.EncodeToString(b)))
}
