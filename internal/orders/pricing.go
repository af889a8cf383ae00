package orders

import (
	"github.com/google/uuid"

	"github.com/audiotailoc/commerce/internal/inventory"
)

// Flat shipping below the free-shipping threshold; amounts are VND.
const (
	FlatShippingCents          int64 = 50_000
	FreeShippingThresholdCents int64 = 10_000_000
)

// checkoutLine is one cart line joined with the locked product row.
type checkoutLine struct {
	ProductID  string
	Qty        int
	Name       string
	PriceCents int64
	Stock      int
	Active     bool
}

// planItems validates every line against locked stock and snapshots the
// passing ones. Any shortage fails the whole plan: no partial orders, and
// all offending products are reported at once. Inactive or deleted products
// count as zero stock.
func planItems(lines []checkoutLine) ([]Item, *inventory.ShortageError) {
	var shortages []inventory.Shortage
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		avail := l.Stock
		if !l.Active {
			avail = 0
		}
		if avail < l.Qty {
			shortages = append(shortages, inventory.Shortage{ProductID: l.ProductID, Requested: l.Qty, Available: avail})
			continue
		}
		items = append(items, Item{
			ID:             uuid.NewString(),
			ProductID:      l.ProductID,
			Name:           l.Name,
			Quantity:       l.Qty,
			UnitPriceCents: l.PriceCents,
		})
	}
	if len(shortages) > 0 {
		return nil, &inventory.ShortageError{Shortages: shortages}
	}
	return items, nil
}

// computeAmounts derives the persisted totals from item snapshots; they are
// never recomputed from live prices afterwards.
func computeAmounts(items []Item) (subtotal, shipping, total int64) {
	for _, it := range items {
		subtotal += it.UnitPriceCents * int64(it.Quantity)
	}
	shipping = FlatShippingCents
	if subtotal > FreeShippingThresholdCents {
		shipping = 0
	}
	return subtotal, shipping, subtotal + shipping
}
