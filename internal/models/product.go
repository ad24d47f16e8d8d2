package models

import "time"

// Product est la fiche catalogue telle que le panier et la commande la lisent.
// Les montants sont en cents.
type Product struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	PriceCents    int64     `json:"price_cents" db:"price_cents"`
	ShippingCents int64     `json:"shipping_price_cents" db:"shipping_price_cents"`
	Stock         int       `json:"stock" db:"stock"`
	IsVisible     bool      `json:"is_visible" db:"is_visible"`
	ImageKey      string    `json:"image_key,omitempty" db:"image_key"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
