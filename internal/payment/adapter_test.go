package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/payment"
	"vitrine_back_end/internal/store/memory"
)

type fakeGateway struct {
	mu         sync.Mutex
	sessions   []payment.CheckoutSessionParams
	expired    []string
	created    []int64
	updated    map[string]int64
	sessionErr error
	parse      func(payload []byte, sig string) (*payment.Event, error)
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p payment.CheckoutSessionParams) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.sessions = append(g.sessions, p)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, id)
	return nil
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amount int64, _ map[string]string) (*payment.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, amount)
	return &payment.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", AmountCents: amount}, nil
}

func (g *fakeGateway) UpdatePaymentIntent(_ context.Context, id string, amount int64) (*payment.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updated == nil {
		g.updated = make(map[string]int64)
	}
	g.updated[id] = amount
	return &payment.PaymentIntent{ID: id, AmountCents: amount}, nil
}

func (g *fakeGateway) Refund(context.Context, string, int64) (string, error) {
	return "re_1", nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, sig string) (*payment.Event, error) {
	return g.parse(payload, sig)
}

// refusingCarts simule une écriture du panier qui échoue après l'ouverture de la session.
type refusingCarts struct {
	*cart.Manager
}

func (refusingCarts) UpdatePaymentReference(context.Context, cart.PaymentReference) (*models.Cart, error) {
	return nil, errors.New("connection reset")
}

type staticImages struct{}

func (staticImages) ImageURL(_ context.Context, key string) string {
	return "https://img.test/" + key
}

var address = models.ShippingAddress{
	FullName:     " Ada Lovelace ",
	AddressLine1: "12 St James's Square",
	City:         "London",
	PostalCode:   "SW1Y 4JH",
	Country:      "gb",
}

func setup(t *testing.T) (*memory.Store, *cart.Manager, *fakeGateway, *payment.Adapter) {
	t.Helper()
	store := memory.New()
	store.PutProduct(models.Product{ID: "P1", Name: "Widget", PriceCents: 2999, ShippingCents: 599, Stock: 10, IsVisible: true, ImageKey: "p1.jpg"})
	store.PutProduct(models.Product{ID: "P2", Name: "Gadget", PriceCents: 1000, Stock: 5, IsVisible: true})
	carts := cart.NewManager(store.Carts(), store.Catalog(), nil)
	gw := &fakeGateway{}
	adapter := payment.NewAdapter(gw, carts, store.Reservations(), payment.AdapterOptions{
		ReservationTTL:   35 * time.Minute,
		ReservationGrace: 5 * time.Minute,
		Images:           staticImages{},
	})
	return store, carts, gw, adapter
}

func TestCreateCheckoutSession(t *testing.T) {
	store, carts, gw, adapter := setup(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "C1", "P1", 2)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, "C1", "P2", 1)
	require.NoError(t, err)

	res, err := adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", UserID: "u1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", res.URL)

	require.Len(t, gw.sessions, 1)
	p := gw.sessions[0]
	require.Len(t, p.LineItems, 3)
	assert.Equal(t, payment.LineItem{Name: "Widget", ImageURL: "https://img.test/p1.jpg", UnitAmountCents: 2999, Quantity: 2}, p.LineItems[0])
	assert.Equal(t, payment.LineItem{Name: "Shipping - Widget", UnitAmountCents: 599, Quantity: 2}, p.LineItems[1])
	assert.Equal(t, payment.LineItem{Name: "Gadget", UnitAmountCents: 1000, Quantity: 1}, p.LineItems[2])

	assert.Equal(t, "C1", p.Metadata[payment.MetaCartID])
	assert.Equal(t, "u1", p.Metadata[payment.MetaUserID])
	assert.Equal(t, "Ada Lovelace", p.Metadata[payment.MetaFullName])
	assert.Equal(t, "GB", p.Metadata[payment.MetaCountry])
	assert.Equal(t, "81.96", p.Metadata[payment.MetaOrderTotal])
	assert.WithinDuration(t, time.Now().Add(35*time.Minute), p.ExpiresAt, 5*time.Second)

	c, err := carts.GetCart(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", c.PaymentSessionID)

	assert.Equal(t, 8, store.Stock("P1"))
	assert.Equal(t, 4, store.Stock("P2"))
	for _, r := range store.ReservationsFor("C1") {
		assert.Equal(t, models.ReservationReserved, r.Status)
		assert.Equal(t, "cs_test_1", r.PaymentSessionID)
		assert.WithinDuration(t, time.Now().Add(40*time.Minute), r.ExpiresAt, 5*time.Second)
	}
	assert.Empty(t, gw.expired)
}

func TestCreateCheckoutSessionReplacesPreviousSession(t *testing.T) {
	store, carts, gw, adapter := setup(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "C1", "P1", 2)
	require.NoError(t, err)

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	require.NoError(t, err)
	res, err := adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_2", res.SessionID)

	assert.Equal(t, []string{"cs_test_1"}, gw.expired)
	assert.Equal(t, 8, store.Stock("P1"), "le stock n'est réservé qu'une fois")

	var active []models.StockReservation
	for _, r := range store.ReservationsFor("C1") {
		if r.Status == models.ReservationReserved {
			active = append(active, r)
		}
	}
	require.Len(t, active, 1)
	assert.Equal(t, "cs_test_2", active[0].PaymentSessionID)
}

func TestCreateCheckoutSessionReferenceFailureUndoesSession(t *testing.T) {
	store := memory.New()
	store.PutProduct(models.Product{ID: "P1", Name: "Widget", PriceCents: 2999, Stock: 10, IsVisible: true})
	carts := cart.NewManager(store.Carts(), store.Catalog(), nil)
	gw := &fakeGateway{}
	adapter := payment.NewAdapter(gw, refusingCarts{carts}, store.Reservations(), payment.AdapterOptions{})
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "C1", "P1", 3)
	require.NoError(t, err)

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cs_test_1")

	assert.Equal(t, []string{"cs_test_1"}, gw.expired)
	assert.Equal(t, 10, store.Stock("P1"))
	for _, r := range store.ReservationsFor("C1") {
		assert.Equal(t, models.ReservationReleased, r.Status)
	}
}

func TestCreateCheckoutSessionAnonymousUser(t *testing.T) {
	_, carts, gw, adapter := setup(t)
	ctx := context.Background()
	_, err := carts.AddItem(ctx, "C1", "P2", 1)
	require.NoError(t, err)

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, payment.AnonymousUserID, gw.sessions[0].Metadata[payment.MetaUserID])
}

func TestCreateCheckoutSessionRejections(t *testing.T) {
	_, carts, gw, adapter := setup(t)
	ctx := context.Background()

	_, err := adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = carts.AddItem(ctx, "C1", "P1", 1)
	require.NoError(t, err)
	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1"})
	assert.True(t, apperr.Is(err, apperr.Invalid), "adresse manquante")

	require.NoError(t, carts.Clear(ctx, "C1"))
	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.Equal(t, "Cart is empty", apperr.MessageOf(err))
	assert.Empty(t, gw.sessions)
}

func TestCreateCheckoutSessionShortageReservesNothing(t *testing.T) {
	store, carts, gw, adapter := setup(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "C1", "P2", 5)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, "C2", "P2", 3)
	require.NoError(t, err)

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Stock("P2"))

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C2", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.Empty(t, store.ReservationsFor("C2"))
	assert.Len(t, gw.sessions, 1)
}

func TestCreateCheckoutSessionGatewayFailureReleasesStock(t *testing.T) {
	store, carts, gw, adapter := setup(t)
	ctx := context.Background()
	gw.sessionErr = errors.New("connection reset")

	_, err := carts.AddItem(ctx, "C1", "P1", 3)
	require.NoError(t, err)

	_, err = adapter.CreateCheckoutSession(ctx, payment.CheckoutRequest{CartID: "C1", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.UpstreamFailure))
	assert.Equal(t, 10, store.Stock("P1"))

	c, err := carts.GetCart(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, c.PaymentSessionID)
}

func TestCreateOrUpdatePaymentIntentFollowsCartTotal(t *testing.T) {
	_, carts, gw, adapter := setup(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "C1", "P1", 2)
	require.NoError(t, err)

	pi, err := adapter.CreateOrUpdatePaymentIntent(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret", pi.ClientSecret)
	assert.Equal(t, []int64{7196}, gw.created)

	_, err = carts.UpdateItemQuantity(ctx, "C1", "P1", 1)
	require.NoError(t, err)

	pi, err = adapter.CreateOrUpdatePaymentIntent(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret", pi.ClientSecret, "le secret existant est conservé")
	assert.Equal(t, int64(3598), gw.updated["pi_1"])
	assert.Len(t, gw.created, 1)
}

func TestVerifyAndParseWebhookFailsClosed(t *testing.T) {
	_, _, gw, adapter := setup(t)
	gw.parse = func([]byte, string) (*payment.Event, error) {
		return nil, errors.New("no signatures found matching the expected signature")
	}

	_, err := adapter.VerifyAndParseWebhook([]byte(`{}`), "t=1,v1=bad")
	assert.True(t, apperr.Is(err, apperr.SignatureInvalid))

	_, err = adapter.VerifyAndParseWebhook([]byte(`{}`), "")
	assert.True(t, apperr.Is(err, apperr.SignatureInvalid))

	_, err = adapter.VerifyAndParseWebhook(make([]byte, payment.MaxWebhookBytes+1), "t=1,v1=x")
	assert.True(t, apperr.Is(err, apperr.Invalid))
}
