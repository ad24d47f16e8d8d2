package models

import "fmt"

type OrderStatus string

const (
	StatusPending         OrderStatus = "Pending"
	StatusPaymentReceived OrderStatus = "PaymentReceived"
	StatusProcessing      OrderStatus = "Processing"
	StatusShipped         OrderStatus = "Shipped"
	StatusDelivered       OrderStatus = "Delivered"
	StatusCancelled       OrderStatus = "Cancelled"
)

// validNext décrit le cycle de vie d'une commande. Delivered et Cancelled sont terminaux.
var validNext = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusPaymentReceived, StatusCancelled},
	StatusPaymentReceived: {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusShipped},
	StatusShipped:         {StatusDelivered},
	StatusDelivered:       {},
	StatusCancelled:       {},
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("statut de commande inconnu: %q", v)
	}
	return s, nil
}
