package cart

import "errors"

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("cart item not found")
)

// Line is one cart row joined with live product data. A line whose product
// was deleted or deactivated is kept and flagged so the owner can remove it
// explicitly.
type Line struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineCents      int64  `json:"line_cents"`
	Unavailable    bool   `json:"unavailable,omitempty"`
}

type View struct {
	Items      []Line `json:"items"`
	ItemCount  int    `json:"item_count"`
	TotalCents int64  `json:"total_cents"`
}

// BuildView computes totals from live prices at read time. Unavailable lines
// are listed but contribute nothing to the total.
func BuildView(lines []Line) View {
	v := View{Items: make([]Line, 0, len(lines))}
	for _, l := range lines {
		if l.Unavailable {
			l.UnitPriceCents = 0
			l.LineCents = 0
		} else {
			l.LineCents = l.UnitPriceCents * int64(l.Quantity)
			v.TotalCents += l.LineCents
		}
		v.ItemCount += l.Quantity
		v.Items = append(v.Items, l)
	}
	return v
}
