package models

import "time"

// Cart est un panier persistant. ID est la clé canonique. SessionID est
// l'ancienne clé encore acceptée en lecture pour les clients historiques.
type Cart struct {
	ID               string     `json:"id" db:"id"`
	SessionID        string     `json:"session_id,omitempty" db:"session_id"`
	PaymentSessionID string     `json:"payment_session_id,omitempty" db:"payment_session_id"`
	PaymentIntentID  string     `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	ClientSecret     string     `json:"-" db:"client_secret"`
	Version          int64      `json:"version" db:"version"`
	Items            []CartItem `json:"items"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// CartItem référence un produit. Les prix sont ceux du produit au moment
// de la lecture, jamais figés dans le panier.
type CartItem struct {
	ID            string `json:"id" db:"id"`
	ProductID     string `json:"product_id" db:"product_id"`
	ProductName   string `json:"product_name"`
	ImageKey      string `json:"image_key,omitempty"`
	Quantity      int    `json:"quantity" db:"quantity"`
	PriceCents    int64  `json:"price_cents"`
	ShippingCents int64  `json:"shipping_price_cents"`
	Stock         int    `json:"stock"`
}

// Totals regroupe les montants dérivés, en cents.
type Totals struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

func (i CartItem) SubtotalCents() int64 { return i.PriceCents * int64(i.Quantity) }

func (i CartItem) ShippingTotalCents() int64 { return i.ShippingCents * int64(i.Quantity) }

func (i CartItem) TotalCents() int64 { return i.SubtotalCents() + i.ShippingTotalCents() }

// Totals recalcule les montants à partir des lignes courantes.
func (c *Cart) Totals() Totals {
	var t Totals
	for _, it := range c.Items {
		t.Subtotal += it.SubtotalCents()
		t.Shipping += it.ShippingTotalCents()
	}
	t.Total = t.Subtotal + t.Shipping
	return t
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// FindItem retourne l'index de la ligne du produit, -1 si absente.
func (c *Cart) FindItem(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) RemoveItem(productID string) bool {
	idx := c.FindItem(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// Clone copie le panier et ses lignes.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	return &cp
}
