package models

import "time"

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// StockReservation bloque du stock pour un panier pendant une session de paiement.
type StockReservation struct {
	ID        string            `json:"id" db:"id"`
	CartID    string            `json:"cart_id" db:"cart_id"`
	ProductID string            `json:"product_id" db:"product_id"`
	Quantity  int               `json:"quantity" db:"quantity"`
	Status    ReservationStatus `json:"status" db:"status"`
	// PaymentSessionID est renseigné une fois la session de paiement ouverte.
	PaymentSessionID string    `json:"payment_session_id,omitempty" db:"payment_session_id"`
	OrderID          string    `json:"order_id,omitempty" db:"order_id"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// StockLine est une quantité demandée pour un produit.
type StockLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockShortage décrit un produit dont le stock ne couvre pas la demande.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// LinesFromCart agrège les quantités du panier par produit.
func LinesFromCart(c *Cart) []StockLine {
	lines := make([]StockLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}
