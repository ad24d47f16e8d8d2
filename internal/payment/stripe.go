package payment

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/config"
)

// StripeGateway utilise des clients dédiés : aucune clé globale stripe.Key.
type StripeGateway struct {
	sessions      session.Client
	intents       paymentintent.Client
	refunds       refund.Client
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string
	countries     []string
}

func NewStripeGateway(cfg config.StripeConfig, checkout config.CheckoutConfig) *StripeGateway {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeGateway{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		intents:       paymentintent.Client{B: backend, Key: cfg.SecretKey},
		refunds:       refund.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		successURL:    checkout.SuccessURL,
		cancelURL:     checkout.CancelURL,
		countries:     checkout.AllowedCountries,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	params := g.checkoutParams(p)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamFailure, "payment.CreateCheckoutSession", err, "Payment provider unavailable")
	}
	out := &CheckoutSession{ID: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.sessions.Expire(id, params); err != nil {
		return apperr.Wrap(apperr.UpstreamFailure, "payment.ExpireCheckoutSession", err, "Payment provider unavailable")
	}
	return nil
}

func (g *StripeGateway) checkoutParams(p CheckoutSessionParams) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(g.successURL),
		CancelURL:          stripe.String(g.cancelURL),
		ClientReferenceID:  stripe.String(p.CartID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		},
	}
	if len(g.countries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(g.countries),
		}
	}
	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	for _, it := range p.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if it.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{it.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.currency),
				UnitAmount:  stripe.Int64(it.UnitAmountCents),
				ProductData: product,
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	return params
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamFailure, "payment.CreatePaymentIntent", err, "Payment provider unavailable")
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, AmountCents: pi.Amount}, nil
}

func (g *StripeGateway) UpdatePaymentIntent(ctx context.Context, id string, amountCents int64) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{Amount: stripe.Int64(amountCents)}
	params.Context = ctx

	pi, err := g.intents.Update(id, params)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamFailure, "payment.UpdatePaymentIntent", err, "Payment provider unavailable")
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, AmountCents: pi.Amount}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	r, err := g.refunds.New(params)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamFailure, "payment.Refund", err, "Refund failed")
	}
	log.Printf("💸 Remboursement Stripe %s (%d cents) pour %s", r.ID, amountCents, paymentIntentID)
	return r.ID, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	const op = "payment.ParseWebhook"
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperr.Wrap(apperr.SignatureInvalid, op, err, "Invalid signature")
	}
	return decodeEvent(event)
}

// decodeEvent extrait la session ou l'intent de l'événement déjà vérifié.
func decodeEvent(event stripe.Event) (*Event, error) {
	const op = "payment.ParseWebhook"
	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, apperr.Wrap(apperr.Invalid, op, err, "Malformed checkout session")
		}
		out.Object = EventObject{
			ID:            s.ID,
			PaymentStatus: string(s.PaymentStatus),
			Metadata:      s.Metadata,
			AmountTotal:   s.AmountTotal,
			CustomerEmail: s.CustomerEmail,
		}
		if s.PaymentIntent != nil {
			out.Object.PaymentIntentID = s.PaymentIntent.ID
		}
		if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
			out.Object.CustomerEmail = s.CustomerDetails.Email
		}
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperr.Wrap(apperr.Invalid, op, err, "Malformed payment intent")
		}
		out.Object = EventObject{
			ID:              pi.ID,
			PaymentIntentID: pi.ID,
			PaymentStatus:   string(pi.Status),
			Metadata:        pi.Metadata,
			AmountTotal:     pi.Amount,
			CustomerEmail:   pi.ReceiptEmail,
		}
	}
	return out, nil
}
