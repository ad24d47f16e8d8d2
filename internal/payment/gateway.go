// Package payment isole la passerelle de paiement (Stripe) : sessions de
// checkout, PaymentIntents, remboursements et vérification des webhooks.
package payment

import (
	"context"
	"time"
)

// Types d'événements traités par la réconciliation.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired        = "checkout.session.expired"
	EventPaymentSucceeded       = "payment_intent.succeeded"
	EventPaymentFailed          = "payment_intent.payment_failed"
)

// PaymentStatusPaid est le statut d'une session dont le paiement est encaissé.
const PaymentStatusPaid = "paid"

// MaxWebhookBytes borne la taille d'un webhook accepté.
const MaxWebhookBytes = int64(65536)

// Gateway est le contrat minimal avec la passerelle. Les montants sont en centimes.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	// ExpireCheckoutSession ferme une session encore ouverte pour qu'elle ne soit plus payable.
	ExpireCheckoutSession(ctx context.Context, id string) error
	CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, id string, amountCents int64) (*PaymentIntent, error)
	Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error)
	// ParseWebhook vérifie la signature sur les octets bruts avant tout décodage.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type LineItem struct {
	Name            string
	ImageURL        string
	UnitAmountCents int64
	Quantity        int64
}

type CheckoutSessionParams struct {
	CartID    string
	LineItems []LineItem
	Metadata  map[string]string
	ExpiresAt time.Time
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
}

// Event est un événement vérifié, réduit aux champs utiles à la réconciliation.
type Event struct {
	ID     string
	Type   string
	Object EventObject
}

// EventObject reprend la session ou l'intent porté par l'événement.
type EventObject struct {
	ID              string
	PaymentIntentID string
	PaymentStatus   string
	Metadata        map[string]string
	AmountTotal     int64
	CustomerEmail   string
}

// PaymentRefs retourne les références sous lesquelles une commande peut être enregistrée.
func (o EventObject) PaymentRefs() []string {
	refs := make([]string, 0, 2)
	if o.ID != "" {
		refs = append(refs, o.ID)
	}
	if o.PaymentIntentID != "" && o.PaymentIntentID != o.ID {
		refs = append(refs, o.PaymentIntentID)
	}
	return refs
}
