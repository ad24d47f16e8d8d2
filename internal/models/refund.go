package models

import "time"

// Refund trace le remboursement émis lors de l'annulation d'une commande payée.
type Refund struct {
	OrderID          string    `json:"order_id"`
	PaymentIntentID  string    `json:"payment_intent_id"`
	ProviderRefundID string    `json:"provider_refund_id"`
	AmountCents      int64     `json:"amount_cents"`
	CreatedAt        time.Time `json:"created_at"`
}
