package models

import "time"

// Order est immuable à la création sauf son statut. UserID vide = commande anonyme.
type Order struct {
	ID               string          `json:"id" db:"id"`
	UserID           string          `json:"user_id,omitempty" db:"user_id"`
	CartID           string          `json:"cart_id,omitempty" db:"cart_id"`
	Status           OrderStatus     `json:"status" db:"status"`
	Items            []OrderItem     `json:"items"`
	ShippingAddress  ShippingAddress `json:"shipping_address"`
	SubtotalCents    int64           `json:"subtotal_cents" db:"subtotal_cents"`
	ShippingCents    int64           `json:"shipping_cents" db:"shipping_cents"`
	TotalCents       int64           `json:"total_cents" db:"total_cents"`
	PaymentSessionID string          `json:"payment_session_id,omitempty" db:"payment_session_id"`
	PaymentIntentID  string          `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderItem fige le prix et les frais de port au moment de l'achat.
type OrderItem struct {
	ID                   string `json:"id" db:"id"`
	ProductID            string `json:"product_id" db:"product_id"`
	ProductName          string `json:"product_name" db:"product_name"`
	Quantity             int    `json:"quantity" db:"quantity"`
	PriceAtPurchaseCents int64  `json:"price_at_purchase_cents" db:"price_at_purchase_cents"`
	ShippingAtPurchase   int64  `json:"shipping_price_at_purchase_cents" db:"shipping_price_at_purchase_cents"`
}

func (i OrderItem) SubtotalCents() int64 { return i.PriceAtPurchaseCents * int64(i.Quantity) }

func (i OrderItem) ShippingTotalCents() int64 { return i.ShippingAtPurchase * int64(i.Quantity) }

func (i OrderItem) TotalCents() int64 { return i.SubtotalCents() + i.ShippingTotalCents() }

// IsAnonymous indique une commande passée sans compte.
func (o *Order) IsAnonymous() bool { return o.UserID == "" }

// OwnedBy vérifie l'accès d'un utilisateur non admin à la commande.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}
