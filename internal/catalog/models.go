package catalog

import "time"

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
